// Package check runs one health check end to end: fetch, extract, classify, report.
package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/balaji-balu/etcdcheck/internal/config"
	"github.com/balaji-balu/etcdcheck/internal/logger"
	"github.com/balaji-balu/etcdcheck/internal/metrics"
	"github.com/balaji-balu/etcdcheck/internal/remote"
	"github.com/balaji-balu/etcdcheck/internal/report"
	"github.com/balaji-balu/etcdcheck/internal/status"
	"github.com/balaji-balu/etcdcheck/internal/telemetry"
	"github.com/balaji-balu/etcdcheck/pkg/model"
)

// Exit code for runs that never reached the classifier.
const ExitFetchFailure = 2

var defaultResolver status.AddrResolver = net.DefaultResolver

// Fetcher returns the raw status payload of the cluster.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Runner holds everything one run needs. Sender and Pusher may be nil.
type Runner struct {
	Config    config.Config
	Fetcher   Fetcher
	Extractor *status.Extractor
	Sender    *report.Sender
	Pusher    *metrics.Pusher
	Out       io.Writer
	Log       *logger.Logger
	Hostname  func() (string, error)
	Now       func() time.Time
}

// New wires the production dependencies for cfg.
func New(cfg config.Config, log *logger.Logger) *Runner {
	runner := remote.NewSSHRunner(cfg.SSH, log)
	return &Runner{
		Config:    cfg,
		Fetcher:   remote.NewFetcher(cfg, runner, log),
		Extractor: status.NewExtractor(defaultResolver, log),
		Sender:    report.NewSender(cfg.Collector, log),
		Pusher:    metrics.NewPusher(cfg.PushgatewayURL),
		Out:       os.Stdout,
		Log:       log,
		Hostname:  os.Hostname,
		Now:       time.Now,
	}
}

// Run executes the pipeline and returns the process exit code. A non-nil
// error is always fatal; delivery problems are only logged.
func (r *Runner) Run(ctx context.Context) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "check")
	defer span.End()
	span.SetAttributes(
		attribute.String("etcd.manager", r.Config.Target),
		attribute.String("etcd.environment", r.Config.Environment),
	)

	res, err := r.evaluate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExitFetchFailure, err
	}
	span.SetAttributes(attribute.String("etcd.status", string(res.Level)))

	ev := report.NewEvent(res, r.hostname(), r.Now())
	if err := r.render(res, ev); err != nil {
		return ExitFetchFailure, fmt.Errorf("render report: %w", err)
	}

	r.deliver(ctx, ev)
	r.push(ctx, res)

	return res.ExitCode, nil
}

func (r *Runner) evaluate(ctx context.Context) (model.Result, error) {
	fctx, fspan := telemetry.Tracer().Start(ctx, "fetch")
	raw, err := r.Fetcher.Fetch(fctx)
	fspan.End()
	if err != nil {
		return model.Result{}, err
	}

	ectx, espan := telemetry.Tracer().Start(ctx, "extract")
	summary, err := r.Extractor.Extract(ectx, raw)
	espan.End()
	if err != nil {
		return model.Result{}, err
	}

	res := status.Evaluate(r.Config.Target, r.Config.Environment, summary, r.Config.WarnBytes, r.Config.CritBytes, r.Config.CritGB)
	r.Log.Ctx(ctx).Info("check classified",
		zap.String("manager", res.Target),
		zap.String("status", string(res.Level)),
		zap.Int64("max_db_size_bytes", res.MaxDBSize),
		zap.Int("usage_percent", res.Percent),
		zap.String("leader", res.Leader),
	)
	return res, nil
}

func (r *Runner) render(res model.Result, ev report.Event) error {
	switch r.Config.Output {
	case config.OutputJSON:
		return report.WriteJSON(r.Out, ev)
	case config.OutputYAML:
		return report.WriteYAML(r.Out, ev)
	default:
		return report.WriteConsole(r.Out, res)
	}
}

func (r *Runner) deliver(ctx context.Context, ev report.Event) {
	if r.Sender == nil {
		return
	}
	ctx, span := telemetry.Tracer().Start(ctx, "deliver")
	defer span.End()

	if err := r.Sender.Send(ctx, ev); err != nil {
		span.RecordError(err)
		r.Log.Warn("WARN: collector delivery failed (non-fatal, exit code unchanged)", zap.Error(err))
	}
}

func (r *Runner) push(ctx context.Context, res model.Result) {
	if r.Pusher == nil {
		return
	}
	if err := r.Pusher.Push(ctx, res); err != nil {
		r.Log.Warn("WARN: pushgateway export failed (non-fatal)", zap.Error(err))
	}
}

func (r *Runner) hostname() string {
	if r.Hostname == nil {
		return "unknown"
	}
	h, err := r.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// ExitCode maps a fatal error to a process exit code.
func ExitCode(err error) int {
	var (
		fetch   *remote.FetchError
		extract *status.ExtractionError
	)
	switch {
	case err == nil:
		return model.ExitOK
	case errors.As(err, &fetch), errors.As(err, &extract):
		return ExitFetchFailure
	default:
		// usage errors and anything unexpected
		return 1
	}
}
