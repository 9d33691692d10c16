package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/icewiki/nomulus/internal/model"
)

// Metrics counts flow outcomes. A nil *Metrics records nothing.
type Metrics struct {
	// Invocations by command, resource type and outcome
	Flows *prometheus.CounterVec

	// End-to-end latency by command
	Duration *prometheus.HistogramVec

	// Failures by the stage that failed and the error kind
	Failures *prometheus.CounterVec
}

// NewMetrics registers flow metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Flows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_flow_total",
			Help: "Flow invocations by command, resource type and outcome",
		}, []string{"command", "resource_type", "outcome"}), // outcome: "committed", "failed"

		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_flow_duration_seconds",
			Help:    "Duration of flow invocations including commit",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"command"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_flow_failures_total",
			Help: "Failed flow invocations by failing stage and error kind",
		}, []string{"stage", "kind"}),
	}
}

func (m *Metrics) observe(cmd Command, res Result, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(string(cmd.Type)).Observe(d.Seconds())
	if err == nil {
		m.Flows.WithLabelValues(string(cmd.Type), string(cmd.ResourceType), "committed").Inc()
		return
	}
	m.Flows.WithLabelValues(string(cmd.Type), string(cmd.ResourceType), "failed").Inc()
	kind, ok := model.KindOf(err)
	if !ok {
		kind = "INTERNAL"
	}
	m.Failures.WithLabelValues(string(res.FailedAt), string(kind)).Inc()
}
