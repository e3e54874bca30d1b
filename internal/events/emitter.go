package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agentcore/nexuscore/pkg/models"
)

// Emitter builds and dispatches TaskEvents for one task, stamping each
// with a monotonically increasing sequence number so subscribers can
// detect gaps or reordering.
type Emitter struct {
	taskID   string
	sequence atomic.Uint64
	sink     Sink
	now      func() time.Time
}

// New builds an Emitter for taskID. A nil sink defaults to NopSink.
func New(taskID string, sink Sink) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Emitter{taskID: taskID, sink: sink, now: time.Now}
}

func (e *Emitter) base(eventType models.TaskEventType) models.TaskEvent {
	return models.TaskEvent{
		Version:  1,
		Type:     eventType,
		TaskID:   e.taskID,
		Time:     e.now(),
		Sequence: e.sequence.Add(1),
	}
}

// emit dispatches ev to the sink. Sink failures (including panics) must
// never reach the caller: event delivery is best-effort and must not
// affect task outcome.
func (e *Emitter) emit(ctx context.Context, ev models.TaskEvent) {
	emitSafely(ctx, e.sink, ev)
}

// Started emits a TaskEventStarted.
func (e *Emitter) Started(ctx context.Context, taskName, agentID, executionMode string) {
	ev := e.base(models.TaskEventStarted)
	ev.Started = &models.TaskStartedPayload{TaskName: taskName, AgentID: agentID, ExecutionMode: executionMode}
	e.emit(ctx, ev)
}

// Output emits a TaskEventOutput carrying streamed process/tool text.
func (e *Emitter) Output(ctx context.Context, text string, isStderr, isComplete bool) {
	ev := e.base(models.TaskEventOutput)
	ev.Output = &models.TaskOutputPayload{Text: text, IsStderr: isStderr, IsComplete: isComplete}
	e.emit(ctx, ev)
}

// Progress emits a TaskEventProgress.
func (e *Emitter) Progress(ctx context.Context, phase string, percent *float64, details map[string]any) {
	ev := e.base(models.TaskEventProgress)
	ev.Progress = &models.TaskProgressPayload{Phase: phase, Percent: percent, Details: details}
	e.emit(ctx, ev)
}

// Completed emits a TaskEventCompleted, the terminal success transition.
func (e *Emitter) Completed(ctx context.Context, result string, duration time.Duration, stats map[string]any) {
	ev := e.base(models.TaskEventCompleted)
	ev.Completed = &models.TaskCompletedPayload{Result: result, DurationMs: duration.Milliseconds(), Stats: stats}
	e.emit(ctx, ev)
}

// Failed emits a TaskEventFailed, the terminal failure transition.
func (e *Emitter) Failed(ctx context.Context, errMsg, errorCode string, duration time.Duration, recoverable bool) {
	ev := e.base(models.TaskEventFailed)
	ev.Failed = &models.TaskFailedPayload{Error: errMsg, ErrorCode: errorCode, DurationMs: duration.Milliseconds(), Recoverable: recoverable}
	e.emit(ctx, ev)
}

// Cancelled emits a TaskEventCancelled, the terminal cancellation/timeout
// transition.
func (e *Emitter) Cancelled(ctx context.Context, reason string, duration time.Duration) {
	ev := e.base(models.TaskEventCancelled)
	ev.Cancelled = &models.TaskCancelledPayload{Reason: reason, DurationMs: duration.Milliseconds()}
	e.emit(ctx, ev)
}

// Heartbeat emits a TaskEventHeartbeat while a task is in flight.
func (e *Emitter) Heartbeat(ctx context.Context, elapsed time.Duration) {
	ev := e.base(models.TaskEventHeartbeat)
	ev.Heartbeat = &models.TaskHeartbeatPayload{ElapsedMs: elapsed.Milliseconds()}
	e.emit(ctx, ev)
}
