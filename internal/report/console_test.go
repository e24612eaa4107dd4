package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/etcdcheck/pkg/model"
)

func sampleResult() model.Result {
	return model.Result{
		Target:      "mgr01",
		Environment: "PROD",
		Members:     3,
		Leader:      "etcd-2.prod.example",
		AvgDBSize:   2e9,
		MaxDBSize:   3e9,
		CritBytes:   2147483648,
		Level:       model.LevelCritical,
		Message:     "etcd DB size above critical threshold: 139% of critical threshold (2 GB)",
		Percent:     139,
		ExitCode:    2,
	}
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{812003328, "774.39 MB"},
		{1073741824, "1.00 GB"},
		{2e9, "1.86 GB"},
		{3e9, "2.79 GB"},
		{2 << 40, "2048.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanBytes(tt.in), "%d", tt.in)
	}
}

func TestWriteConsole(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteConsole(&buf, sampleResult()))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "==== etcd health check ====", lines[0])
	assert.Equal(t, "Manager       : mgr01", lines[1])
	assert.Equal(t, "Leader        : etcd-2.prod.example", lines[4])
	assert.Equal(t, "Avg DB size   : 1.86 GB", lines[5])
	assert.Equal(t, "Max DB size   : 2.79 GB", lines[6])
	assert.Equal(t, "Usage         : 139% of 2.00 GB", lines[7])
	assert.Equal(t, "Status        : CRITICAL", lines[8])
}

func TestNewEvent(t *testing.T) {
	now := time.Unix(1760000000, 0)
	ev := NewEvent(sampleResult(), "monitor01", now)

	assert.Equal(t, Event{
		Time:        "1760000000",
		Host:        "monitor01",
		Environment: "PROD",
		Manager:     "mgr01",
		Service:     "etcd",
		Status:      "CRITICAL",
		Message:     "etcd DB size above critical threshold: 139% of critical threshold (2 GB)",
		Leader:      "etcd-2.prod.example",
		AvgDBSize:   2e9,
		MaxDBSize:   3e9,
		Percent:     139,
		ExitCode:    2,
	}, ev)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewEvent(sampleResult(), "monitor01", time.Unix(1, 0))))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "1", got["time"])
	assert.Equal(t, "CRITICAL", got["status"])
	assert.Equal(t, float64(3e9), got["max_db_size_bytes"])
	assert.Equal(t, float64(139), got["usage_percent"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, NewEvent(sampleResult(), "monitor01", time.Unix(1, 0))))

	var got Event
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "mgr01", got.Manager)
	assert.Equal(t, int64(2e9), got.AvgDBSize)
	assert.Contains(t, buf.String(), "avg_db_size_bytes: 2000000000")
}
