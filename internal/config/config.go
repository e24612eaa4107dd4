// Package config resolves flags, environment and an optional config file into
// the immutable settings of one check run.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Keys shared by cobra flags, viper and the config file.
const (
	KeyConfig         = "config"
	KeyTarget         = "target"
	KeyEnv            = "env"
	KeyWarn           = "warn"
	KeyCrit           = "crit"
	KeySplunkURL      = "splunk-url"
	KeySplunkToken    = "splunk-token"
	KeySplunkInsecure = "splunk-insecure"
	KeyIndex          = "index"
	KeySource         = "source"
	KeySourcetype     = "sourcetype"
	KeyJSON           = "json"
	KeyOutput         = "output"
	KeyContainer      = "container"
	KeySSHUser        = "ssh-user"
	KeySSHPort        = "ssh-port"
	KeySSHKey         = "ssh-key"
	KeyPushgatewayURL = "pushgateway-url"
	KeyTrace          = "trace"
	KeyOTLPEndpoint   = "otlp-endpoint"
	KeyVerbose        = "verbose"
)

const (
	EnvProd   = "PROD"
	EnvNoProd = "NOPROD"
)

const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Default thresholds in GB.
const (
	ProdWarnGB   = 1.5
	ProdCritGB   = 2.0
	NoProdWarnGB = 3.0
	NoProdCritGB = 4.0
)

const bytesPerGB = 1 << 30

var containerPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// UsageError marks bad or missing arguments.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func usagef(format string, args ...interface{}) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// SSHConfig describes how to reach the management node.
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string
}

// Addr is host:port suitable for net.Dial.
func (s SSHConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// CollectorConfig holds the HEC endpoint and routing metadata.
type CollectorConfig struct {
	URL        string
	Token      string
	Index      string
	Source     string
	Sourcetype string
	Insecure   bool
}

// Enabled reports whether both an endpoint and a token are configured.
func (c CollectorConfig) Enabled() bool {
	return c.URL != "" && c.Token != ""
}

// TelemetryConfig selects the span exporter.
type TelemetryConfig struct {
	Stdout       bool
	OTLPEndpoint string
}

// Config is built once at startup and passed by value to every stage.
type Config struct {
	Target         string
	SSH            SSHConfig
	Container      string
	Environment    string
	WarnGB         float64
	CritGB         float64
	WarnBytes      int64
	CritBytes      int64
	Collector      CollectorConfig
	Output         string
	PushgatewayURL string
	Telemetry      TelemetryConfig
	Verbose        bool
}

// GBToBytes converts gigabytes to bytes, truncating any fraction of a byte.
func GBToBytes(gb float64) int64 {
	return int64(gb * bytesPerGB)
}

// NormalizeEnv maps any label other than NOPROD to PROD.
func NormalizeEnv(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), EnvNoProd) {
		return EnvNoProd
	}
	return EnvProd
}

// DefaultThresholds returns the warning and critical GB for an environment.
func DefaultThresholds(env string) (warn, crit float64) {
	if NormalizeEnv(env) == EnvNoProd {
		return NoProdWarnGB, NoProdCritGB
	}
	return ProdWarnGB, ProdCritGB
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyIndex, "main")
	v.SetDefault(KeySource, "etcd_healthcheck")
	v.SetDefault(KeySourcetype, "_json")
	v.SetDefault(KeyContainer, "etcd")
	v.SetDefault(KeySSHPort, 22)
	v.SetDefault(KeyOutput, OutputText)
}

// BindEnv wires the collector variables and the ETCDCHECK_ prefix.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ETCDCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv(KeySplunkURL, "SPLUNK_HEC_URL", "ETCDCHECK_SPLUNK_URL")
	_ = v.BindEnv(KeySplunkToken, "SPLUNK_HEC_TOKEN", "ETCDCHECK_SPLUNK_TOKEN")
	_ = v.BindEnv(KeyIndex, "SPLUNK_INDEX", "ETCDCHECK_INDEX")
	_ = v.BindEnv(KeySource, "SPLUNK_SOURCE", "ETCDCHECK_SOURCE")
	_ = v.BindEnv(KeySourcetype, "SPLUNK_SOURCETYPE", "ETCDCHECK_SOURCETYPE")
	_ = v.BindEnv(KeyOTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT", "ETCDCHECK_OTLP_ENDPOINT")
}

// ReadFile loads the config file named by the config key, if any.
func ReadFile(v *viper.Viper) error {
	path := v.GetString(KeyConfig)
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Load resolves v into a Config. Every failure is a *UsageError.
func Load(v *viper.Viper) (Config, error) {
	target := strings.TrimSpace(v.GetString(KeyTarget))
	if target == "" {
		return Config{}, usagef("--target is required")
	}

	ssh, err := parseTarget(target, v.GetString(KeySSHUser), v.GetInt(KeySSHPort))
	if err != nil {
		return Config{}, err
	}
	ssh.KeyPath = v.GetString(KeySSHKey)

	container := v.GetString(KeyContainer)
	if !containerPattern.MatchString(container) {
		return Config{}, usagef("invalid container name filter %q", container)
	}

	env := NormalizeEnv(v.GetString(KeyEnv))
	warnGB, critGB := DefaultThresholds(env)
	if v.IsSet(KeyWarn) {
		warnGB = v.GetFloat64(KeyWarn)
	}
	if v.IsSet(KeyCrit) {
		critGB = v.GetFloat64(KeyCrit)
	}

	output := strings.ToLower(v.GetString(KeyOutput))
	if v.GetBool(KeyJSON) {
		output = OutputJSON
	}
	switch output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return Config{}, usagef("unknown output mode %q (want text, json or yaml)", output)
	}

	cfg := Config{
		Target:      target,
		SSH:         ssh,
		Container:   container,
		Environment: env,
		WarnGB:      warnGB,
		CritGB:      critGB,
		WarnBytes:   GBToBytes(warnGB),
		CritBytes:   GBToBytes(critGB),
		Collector: CollectorConfig{
			URL:        v.GetString(KeySplunkURL),
			Token:      v.GetString(KeySplunkToken),
			Index:      v.GetString(KeyIndex),
			Source:     v.GetString(KeySource),
			Sourcetype: v.GetString(KeySourcetype),
			Insecure:   v.GetBool(KeySplunkInsecure),
		},
		Output:         output,
		PushgatewayURL: v.GetString(KeyPushgatewayURL),
		Telemetry: TelemetryConfig{
			Stdout:       v.GetBool(KeyTrace),
			OTLPEndpoint: v.GetString(KeyOTLPEndpoint),
		},
		Verbose: v.GetBool(KeyVerbose),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the threshold invariants.
func (c Config) Validate() error {
	if c.WarnBytes <= 0 {
		return usagef("warning threshold must be positive, got %v GB", c.WarnGB)
	}
	if c.CritBytes <= 0 {
		return usagef("critical threshold must be positive, got %v GB", c.CritGB)
	}
	if c.CritBytes < c.WarnBytes {
		return usagef("critical threshold (%v GB) must not be below warning threshold (%v GB)", c.CritGB, c.WarnGB)
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return usagef("invalid ssh port: %d", c.SSH.Port)
	}
	return nil
}

// parseTarget accepts host, user@host, host:port and user@[v6]:port.
func parseTarget(target, user string, port int) (SSHConfig, error) {
	host := target
	if i := strings.LastIndex(host, "@"); i >= 0 {
		user = host[:i]
		host = host[i+1:]
	}

	if strings.HasPrefix(host, "[") || strings.Count(host, ":") == 1 {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return SSHConfig{}, usagef("invalid target %q: %v", target, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return SSHConfig{}, usagef("invalid port in target %q", target)
		}
		host, port = h, n
	}
	if host == "" {
		return SSHConfig{}, usagef("invalid target %q: empty host", target)
	}

	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "root"
	}
	return SSHConfig{Host: host, Port: port, User: user}, nil
}
