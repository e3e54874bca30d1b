package events

import (
	"context"
	"testing"

	"github.com/agentcore/nexuscore/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSink_CountsEventsByType(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	sink := NewMetricsSink(m)

	sink.Emit(context.Background(), models.TaskEvent{Type: models.TaskEventStarted})
	sink.Emit(context.Background(), models.TaskEvent{Type: models.TaskEventStarted})
	sink.Emit(context.Background(), models.TaskEvent{Type: models.TaskEventOutput})

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues(string(models.TaskEventStarted))); got != 2 {
		t.Errorf("started count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues(string(models.TaskEventOutput))); got != 1 {
		t.Errorf("output count = %v, want 1", got)
	}
}

func TestMetricsSink_ObservesDurationOnTerminalEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	sink := NewMetricsSink(m)

	sink.Emit(context.Background(), models.TaskEvent{
		Type:      models.TaskEventCompleted,
		Completed: &models.TaskCompletedPayload{DurationMs: 1500},
	})

	count := testutil.CollectAndCount(m.TaskDuration, "nexuscore_task_duration_seconds")
	if count != 1 {
		t.Errorf("TaskDuration series count = %d, want 1", count)
	}
}

func TestMetricsSink_NilMetricsIsNoop(t *testing.T) {
	sink := NewMetricsSink(nil)
	sink.Emit(context.Background(), models.TaskEvent{Type: models.TaskEventStarted})
}

func TestMetricsSink_IgnoresNonTerminalEventsForDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	sink := NewMetricsSink(m)

	sink.Emit(context.Background(), models.TaskEvent{Type: models.TaskEventProgress})

	count := testutil.CollectAndCount(m.TaskDuration, "nexuscore_task_duration_seconds")
	if count != 0 {
		t.Errorf("TaskDuration series count = %d, want 0", count)
	}
}
