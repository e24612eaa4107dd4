// cmd/etcdcheck/cli/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/balaji-balu/etcdcheck/internal/check"
	"github.com/balaji-balu/etcdcheck/internal/config"
	"github.com/balaji-balu/etcdcheck/internal/logger"
	"github.com/balaji-balu/etcdcheck/internal/telemetry"
)

var version = "v0.1.0"

const serviceName = "etcdcheck"

// app carries the per-invocation state that cobra callbacks share.
type app struct {
	v        *viper.Viper
	out      io.Writer
	errOut   io.Writer
	exitCode int

	newLogger func(cfg config.Config) (*logger.Logger, error)
	newRunner func(cfg config.Config, log *logger.Logger) *check.Runner
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		v:         viper.New(),
		out:       out,
		errOut:    errOut,
		newLogger: defaultLogger,
		newRunner: check.New,
	}
}

func defaultLogger(cfg config.Config) (*logger.Logger, error) {
	if cfg.Verbose {
		return logger.New("development", serviceName)
	}
	return logger.New("production", serviceName)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newApp(os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.errOut, "ERROR: %v\n", err)
		if a.exitCode != 0 {
			return a.exitCode
		}
		code := check.ExitCode(err)
		if code == 1 {
			// stdout carries only the report
			fmt.Fprintf(a.errOut, "Run '%s --help' for usage.\n", serviceName)
		}
		return code
	}
	return a.exitCode
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "etcdcheck --target <host>",
		Short: "Check etcd DB size on a cluster management node",
		Long: `etcdcheck connects to a cluster management node over SSH, reads
'etcdctl endpoint status' from the etcd container and classifies the largest
member DB size against warning and critical thresholds.

Exit codes: 0 OK, 1 WARNING or usage error, 2 CRITICAL or fetch failure.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          a.run,
	}

	f := root.Flags()
	f.StringP(config.KeyConfig, "c", "", "config file (yaml)")
	f.StringP(config.KeyTarget, "t", "", "management node to inspect: host, user@host or host:port (required)")
	f.String(config.KeyEnv, "", "environment: PROD or NOPROD (default PROD)")
	f.Float64(config.KeyWarn, 0, "warning threshold in GB (default 1.5 for PROD, 3 for NOPROD)")
	f.Float64(config.KeyCrit, 0, "critical threshold in GB (default 2 for PROD, 4 for NOPROD)")
	f.String(config.KeySplunkURL, "", "HEC collector URL (env SPLUNK_HEC_URL)")
	f.String(config.KeySplunkToken, "", "HEC token (env SPLUNK_HEC_TOKEN)")
	f.String(config.KeyIndex, "", "HEC index (env SPLUNK_INDEX, default main)")
	f.String(config.KeySource, "", "HEC source (env SPLUNK_SOURCE, default etcd_healthcheck)")
	f.String(config.KeySourcetype, "", "HEC sourcetype (env SPLUNK_SOURCETYPE, default _json)")
	f.Bool(config.KeySplunkInsecure, false, "skip TLS verification towards the collector")
	f.Bool(config.KeyJSON, false, "print the result as JSON (same as --output json)")
	f.StringP(config.KeyOutput, "o", "", "output format: text, json or yaml (default text)")
	f.String(config.KeyContainer, "", "etcd container name filter (default etcd)")
	f.String(config.KeySSHUser, "", "ssh user (default $USER)")
	f.Int(config.KeySSHPort, 0, "ssh port (default 22)")
	f.String(config.KeySSHKey, "", "ssh private key file (default ssh-agent and ~/.ssh/id_*)")
	f.String(config.KeyPushgatewayURL, "", "Prometheus Pushgateway URL")
	f.Bool(config.KeyTrace, false, "print OpenTelemetry spans to stderr")
	f.String(config.KeyOTLPEndpoint, "", "OTLP gRPC endpoint for spans (env OTEL_EXPORTER_OTLP_ENDPOINT)")
	f.BoolP(config.KeyVerbose, "v", false, "enable verbose logging")

	_ = a.v.BindPFlags(f)
	config.SetDefaults(a.v)
	config.BindEnv(a.v)

	return root
}

func (a *app) run(cmd *cobra.Command, _ []string) error {
	if err := config.ReadFile(a.v); err != nil {
		return &config.UsageError{Msg: err.Error()}
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}

	log, err := a.newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer log.Sync()

	ctx := cmd.Context()
	shutdown, err := telemetry.InitTracer(ctx, serviceName, version, cfg.Telemetry)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("trace shutdown failed", zap.Error(err))
			}
		}()
	}

	log.Debug("configuration resolved",
		zap.String("target", cfg.Target),
		zap.String("environment", cfg.Environment),
		zap.Int64("warn_bytes", cfg.WarnBytes),
		zap.Int64("crit_bytes", cfg.CritBytes),
		zap.Bool("collector", cfg.Collector.Enabled()),
	)

	runner := a.newRunner(cfg, log)
	runner.Out = a.out

	code, err := runner.Run(ctx)
	a.exitCode = code
	return err
}
