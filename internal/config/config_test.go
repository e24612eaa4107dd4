package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(kv map[string]interface{}) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	for k, val := range kv {
		v.Set(k, val)
	}
	return v
}

func TestGBToBytes(t *testing.T) {
	assert.Equal(t, int64(1610612736), GBToBytes(1.5))
	assert.Equal(t, int64(2147483648), GBToBytes(2))
	assert.Equal(t, int64(3221225472), GBToBytes(3))
	assert.Equal(t, int64(4294967296), GBToBytes(4))
	// 0.1 GB is not a whole number of bytes and must truncate
	assert.Equal(t, int64(107374182), GBToBytes(0.1))
}

func TestLoad_ProdDefaults(t *testing.T) {
	cfg, err := Load(newViper(map[string]interface{}{KeyTarget: "mgr01"}))
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Environment)
	assert.Equal(t, 1.5, cfg.WarnGB)
	assert.Equal(t, 2.0, cfg.CritGB)
	assert.Equal(t, int64(1610612736), cfg.WarnBytes)
	assert.Equal(t, int64(2147483648), cfg.CritBytes)
	assert.Equal(t, "etcd", cfg.Container)
	assert.Equal(t, OutputText, cfg.Output)
	assert.Equal(t, "main", cfg.Collector.Index)
	assert.Equal(t, "etcd_healthcheck", cfg.Collector.Source)
	assert.Equal(t, "_json", cfg.Collector.Sourcetype)
	assert.False(t, cfg.Collector.Enabled())
}

func TestLoad_NoProdDefaults(t *testing.T) {
	cfg, err := Load(newViper(map[string]interface{}{KeyTarget: "mgr01", KeyEnv: "noprod"}))
	require.NoError(t, err)

	assert.Equal(t, EnvNoProd, cfg.Environment)
	assert.Equal(t, GBToBytes(3), cfg.WarnBytes)
	assert.Equal(t, GBToBytes(4), cfg.CritBytes)
}

func TestLoad_UnknownEnvIsProd(t *testing.T) {
	cfg, err := Load(newViper(map[string]interface{}{KeyTarget: "mgr01", KeyEnv: "staging"}))
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Environment)
	assert.Equal(t, GBToBytes(1.5), cfg.WarnBytes)
}

func TestLoad_ExplicitThresholdsOverrideEnv(t *testing.T) {
	cfg, err := Load(newViper(map[string]interface{}{
		KeyTarget: "mgr01",
		KeyEnv:    EnvNoProd,
		KeyWarn:   5.0,
	}))
	require.NoError(t, err)

	assert.Equal(t, GBToBytes(5), cfg.WarnBytes)
	assert.Equal(t, GBToBytes(4), cfg.CritBytes, "crit keeps the env default")
	// crit below warn is rejected
	_, err = Load(newViper(map[string]interface{}{KeyTarget: "mgr01", KeyWarn: 3.0, KeyCrit: 2.0}))
	var ue *UsageError
	assert.ErrorAs(t, err, &ue)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		kv   map[string]interface{}
	}{
		{"missing target", map[string]interface{}{}},
		{"blank target", map[string]interface{}{KeyTarget: "  "}},
		{"zero warn", map[string]interface{}{KeyTarget: "h", KeyWarn: 0.0}},
		{"negative crit", map[string]interface{}{KeyTarget: "h", KeyCrit: -1.0}},
		{"bad container", map[string]interface{}{KeyTarget: "h", KeyContainer: "etcd; rm -rf /"}},
		{"bad output", map[string]interface{}{KeyTarget: "h", KeyOutput: "xml"}},
		{"bad port", map[string]interface{}{KeyTarget: "h:notaport"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(tt.kv))
			require.Error(t, err)
			var ue *UsageError
			assert.ErrorAs(t, err, &ue)
		})
	}
}

func TestLoad_TargetForms(t *testing.T) {
	t.Setenv("USER", "ops")

	tests := []struct {
		target string
		host   string
		user   string
		port   int
	}{
		{"mgr01", "mgr01", "ops", 22},
		{"admin@mgr01", "mgr01", "admin", 22},
		{"mgr01:2222", "mgr01", "ops", 2222},
		{"admin@10.0.0.5:2200", "10.0.0.5", "admin", 2200},
		{"[fd00::1]:22", "fd00::1", "ops", 22},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			cfg, err := Load(newViper(map[string]interface{}{KeyTarget: tt.target}))
			require.NoError(t, err)
			assert.Equal(t, tt.host, cfg.SSH.Host)
			assert.Equal(t, tt.user, cfg.SSH.User)
			assert.Equal(t, tt.port, cfg.SSH.Port)
			assert.Equal(t, tt.target, cfg.Target)
		})
	}
}

func TestLoad_CollectorFromEnvironment(t *testing.T) {
	t.Setenv("SPLUNK_HEC_URL", "https://hec.example:8088/services/collector/event")
	t.Setenv("SPLUNK_HEC_TOKEN", "secret")
	t.Setenv("SPLUNK_INDEX", "infra")
	t.Setenv("SPLUNK_SOURCETYPE", "etcd:health")

	v := newViper(map[string]interface{}{KeyTarget: "mgr01"})
	BindEnv(v)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.True(t, cfg.Collector.Enabled())
	assert.Equal(t, "https://hec.example:8088/services/collector/event", cfg.Collector.URL)
	assert.Equal(t, "secret", cfg.Collector.Token)
	assert.Equal(t, "infra", cfg.Collector.Index)
	assert.Equal(t, "etcd_healthcheck", cfg.Collector.Source)
	assert.Equal(t, "etcd:health", cfg.Collector.Sourcetype)
}

func TestLoad_JSONFlagWins(t *testing.T) {
	cfg, err := Load(newViper(map[string]interface{}{
		KeyTarget: "mgr01",
		KeyOutput: OutputYAML,
		KeyJSON:   true,
	}))
	require.NoError(t, err)
	assert.Equal(t, OutputJSON, cfg.Output)
}

func TestSSHConfig_Addr(t *testing.T) {
	assert.Equal(t, "mgr01:22", SSHConfig{Host: "mgr01", Port: 22}.Addr())
	assert.Equal(t, "[fd00::1]:2222", SSHConfig{Host: "fd00::1", Port: 2222}.Addr())
}
