package events

import (
	"context"

	"github.com/agentcore/nexuscore/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for task events: a counter per
// event type and a duration histogram recorded at terminal transitions.
type Metrics struct {
	EventsTotal  *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
}

// NewMetrics builds and registers the event metrics against reg. Pass a
// dedicated prometheus.NewRegistry() in tests to avoid colliding with
// other registrations against the default registry; pass nil in
// production to register against prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexuscore_task_events_total",
				Help: "Total number of task events emitted, by type.",
			},
			[]string{"type"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexuscore_task_duration_seconds",
				Help:    "Task duration in seconds at terminal transition, by outcome.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.EventsTotal, m.TaskDuration)
	return m
}

// MetricsSink records every event against Metrics and discards it — a
// pure observation tap with no downstream subscriber.
type MetricsSink struct {
	metrics *Metrics
}

// NewMetricsSink wraps m. A nil m makes Emit a no-op.
func NewMetricsSink(m *Metrics) *MetricsSink {
	return &MetricsSink{metrics: m}
}

// Emit increments the per-type counter and, for terminal event types,
// observes the reported duration.
func (s *MetricsSink) Emit(ctx context.Context, e models.TaskEvent) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventsTotal.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case models.TaskEventCompleted:
		if e.Completed != nil {
			s.metrics.TaskDuration.WithLabelValues("completed").Observe(float64(e.Completed.DurationMs) / 1000)
		}
	case models.TaskEventFailed:
		if e.Failed != nil {
			s.metrics.TaskDuration.WithLabelValues("failed").Observe(float64(e.Failed.DurationMs) / 1000)
		}
	case models.TaskEventCancelled:
		if e.Cancelled != nil {
			s.metrics.TaskDuration.WithLabelValues("cancelled").Observe(float64(e.Cancelled.DurationMs) / 1000)
		}
	}
}
