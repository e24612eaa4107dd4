package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/balaji-balu/etcdcheck/pkg/model"
)

const (
	namespace = "etcdcheck"
	job       = "etcd_healthcheck"
)

// Pusher exports one run's gauges to a Prometheus Pushgateway.
type Pusher struct {
	url string

	registry   *prometheus.Registry
	avgDBSize  prometheus.Gauge
	maxDBSize  prometheus.Gauge
	usage      prometheus.Gauge
	statusCode prometheus.Gauge
	members    prometheus.Gauge
}

// NewPusher returns nil when url is empty.
func NewPusher(url string) *Pusher {
	if url == "" {
		return nil
	}
	p := &Pusher{
		url:      url,
		registry: prometheus.NewRegistry(),
		avgDBSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_size_avg_bytes",
			Help:      "Average etcd DB size across members",
		}),
		maxDBSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_size_max_bytes",
			Help:      "Largest etcd DB size across members",
		}),
		usage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "usage_percent",
			Help:      "Largest DB size as a percentage of the critical threshold",
		}),
		statusCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Check status: 0 OK, 1 WARNING, 2 CRITICAL",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Number of members reporting status",
		}),
	}
	p.registry.MustRegister(p.avgDBSize, p.maxDBSize, p.usage, p.statusCode, p.members)
	return p
}

// Registry exposes the gatherer, mainly for tests.
func (p *Pusher) Registry() *prometheus.Registry {
	return p.registry
}

// Observe records r into the gauges without pushing.
func (p *Pusher) Observe(r model.Result) {
	p.avgDBSize.Set(float64(r.AvgDBSize))
	p.maxDBSize.Set(float64(r.MaxDBSize))
	p.usage.Set(float64(r.Percent))
	p.statusCode.Set(float64(r.ExitCode))
	p.members.Set(float64(r.Members))
}

// Push records r and replaces the target's metric group on the gateway.
func (p *Pusher) Push(ctx context.Context, r model.Result) error {
	p.Observe(r)
	err := push.New(p.url, job).
		Gatherer(p.registry).
		Grouping("manager", r.Target).
		Grouping("environment", r.Environment).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push to %s: %w", p.url, err)
	}
	return nil
}
