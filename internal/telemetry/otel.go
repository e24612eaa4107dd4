package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/balaji-balu/etcdcheck/internal/config"
)

const tracerName = "github.com/balaji-balu/etcdcheck"

// Tracer is the tracer every pipeline stage starts its span from.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTracer installs a tracer provider for cfg and returns its shutdown
// function. With no exporter configured the global no-op provider is kept.
func InitTracer(ctx context.Context, serviceName, version string, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	var opts []sdktrace.TracerProviderOption

	if cfg.Stdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithSyncer(exp))
	}
	if cfg.OTLPEndpoint != "" {
		endpoint := otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)
		if strings.Contains(cfg.OTLPEndpoint, "://") {
			endpoint = otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint)
		}
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(),
			endpoint,
			otlptracegrpc.WithTimeout(5*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(time.Second)))
	}

	if len(opts) == 0 {
		return func(context.Context) error { return nil }, nil
	}

	opts = append(opts, sdktrace.WithResource(resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)))
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
