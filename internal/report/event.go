package report

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/balaji-balu/etcdcheck/internal/config"
	"github.com/balaji-balu/etcdcheck/pkg/model"
)

// ServiceName is the service label carried by every event.
const ServiceName = "etcd"

// Event is the payload describing one run.
type Event struct {
	Time        string `json:"time" yaml:"time"`
	Host        string `json:"host" yaml:"host"`
	Environment string `json:"environment" yaml:"environment"`
	Manager     string `json:"manager" yaml:"manager"`
	Service     string `json:"service" yaml:"service"`
	Status      string `json:"status" yaml:"status"`
	Message     string `json:"message" yaml:"message"`
	Leader      string `json:"leader" yaml:"leader"`
	AvgDBSize   int64  `json:"avg_db_size_bytes" yaml:"avg_db_size_bytes"`
	MaxDBSize   int64  `json:"max_db_size_bytes" yaml:"max_db_size_bytes"`
	Percent     int    `json:"usage_percent" yaml:"usage_percent"`
	ExitCode    int    `json:"exit_code" yaml:"exit_code"`
}

// Envelope wraps an Event with collector routing metadata.
type Envelope struct {
	Event      Event  `json:"event"`
	Index      string `json:"index"`
	Source     string `json:"source"`
	Sourcetype string `json:"sourcetype"`
}

// NewEvent builds the event for r as observed from host at now.
func NewEvent(r model.Result, host string, now time.Time) Event {
	return Event{
		Time:        strconv.FormatInt(now.Unix(), 10),
		Host:        host,
		Environment: r.Environment,
		Manager:     r.Target,
		Service:     ServiceName,
		Status:      string(r.Level),
		Message:     r.Message,
		Leader:      r.Leader,
		AvgDBSize:   r.AvgDBSize,
		MaxDBSize:   r.MaxDBSize,
		Percent:     r.Percent,
		ExitCode:    r.ExitCode,
	}
}

// NewEnvelope attaches routing metadata from cfg.
func NewEnvelope(ev Event, cfg config.CollectorConfig) Envelope {
	return Envelope{
		Event:      ev,
		Index:      cfg.Index,
		Source:     cfg.Source,
		Sourcetype: cfg.Sourcetype,
	}
}

func WriteJSON(w io.Writer, ev Event) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ev)
}

func WriteYAML(w io.Writer, ev Event) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ev); err != nil {
		return err
	}
	return enc.Close()
}
