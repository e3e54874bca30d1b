package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentcore/nexuscore/internal/events"
	"github.com/agentcore/nexuscore/internal/memory"
	"github.com/agentcore/nexuscore/internal/queue"
	"github.com/agentcore/nexuscore/internal/subagent"
	"github.com/agentcore/nexuscore/pkg/models"
)

// BackgroundExecutor adapts a Dispatcher to background.Executor: it
// resolves a BackgroundAgent's OwningAgentID through the registry and
// runs that agent definition against input.
type BackgroundExecutor struct {
	dispatcher *Dispatcher
	sink       events.Sink
}

// NewBackgroundExecutor builds a background.Executor backed by d. sink
// may be nil, in which case lifecycle events are dropped.
func NewBackgroundExecutor(d *Dispatcher, sink events.Sink) *BackgroundExecutor {
	return &BackgroundExecutor{dispatcher: d, sink: sink}
}

// Execute satisfies background.Executor.
func (b *BackgroundExecutor) Execute(ctx context.Context, agent models.BackgroundAgent, input string) (string, error) {
	var emit *events.Emitter
	if b.sink != nil {
		emit = events.New(agent.ID, b.sink)
	}
	return b.dispatcher.RunByID(ctx, agent.OwningAgentID, input, emit)
}

// Worker drains Queue, resolving each task's agent and running it
// through Dispatcher, bounded by a subagent.Tracker's concurrency cap.
type Worker struct {
	queue      *queue.Queue
	dispatcher *Dispatcher
	tracker    *subagent.Tracker
	sink       events.Sink
	memory     *memory.Store
	maxRunning int
	log        *slog.Logger
	now        func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerSink attaches an events.Sink for task lifecycle events.
func WithWorkerSink(sink events.Sink) WorkerOption {
	return func(w *Worker) { w.sink = sink }
}

// WithWorkerLogger overrides the default logger.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(w *Worker) { w.log = log }
}

// WithWorkerNow overrides the clock, for tests.
func WithWorkerNow(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// WithWorkerMemory attaches a memory.Store so every successfully
// completed task's result is captured as a searchable chunk for its
// owning agent. Nil (the default) disables capture.
func WithWorkerMemory(mem *memory.Store) WorkerOption {
	return func(w *Worker) { w.memory = mem }
}

// NewWorker builds a Worker bounded to maxRunning concurrent tasks.
func NewWorker(q *queue.Queue, d *Dispatcher, tracker *subagent.Tracker, maxRunning int, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:      q,
		dispatcher: d,
		tracker:    tracker,
		maxRunning: maxRunning,
		log:        slog.Default().With("component", "dispatch.worker"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RunOnce pops a single task and dispatches it, blocking until the task
// completes or ctx is cancelled. It returns queue.ErrEmpty if there was
// nothing to pop.
func (w *Worker) RunOnce(ctx context.Context) error {
	task, err := w.queue.Pop(ctx, func(t *models.Task) {
		now := w.now()
		t.StartedAt = &now
	})
	if err != nil {
		return err
	}

	state := models.SubAgentState{
		ID:              task.ID,
		ParentAgentName: task.AgentID,
		TaskDescription: taskDescription(task),
		Status:          models.SubAgentStatusRunning,
		StartedAt:       w.now(),
	}
	if err := w.tracker.TryRegister(w.maxRunning, state, func() {}, w.now()); err != nil {
		_ = w.queue.RemoveFromProcessing(ctx, task.ID)
		return fmt.Errorf("dispatch: worker at capacity: %w", err)
	}

	var emit *events.Emitter
	if w.sink != nil {
		emit = events.New(task.ID, w.sink)
	}

	input := inputToString(task.Input)
	result, runErr := w.dispatcher.RunByID(ctx, task.AgentID, input, emit)

	now := w.now()
	task.CompletedAt = &now
	if runErr != nil {
		task.Status = models.TaskStatusFailed
		task.Error = runErr.Error()
		_ = w.tracker.MarkCompleted(task.ID, false, "", runErr.Error(), now)
	} else {
		task.Status = models.TaskStatusCompleted
		task.Result = result
		_ = w.tracker.MarkCompleted(task.ID, true, result, "", now)
		w.captureResult(ctx, task, result)
	}

	if err := w.queue.MoveToCompleted(ctx, task); err != nil {
		w.log.Error("move task to completed failed", "task_id", task.ID, "error", err)
		return err
	}
	return runErr
}

// Loop pops and dispatches tasks until ctx is cancelled, waiting on the
// queue whenever it is empty.
func (w *Worker) Loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := w.RunOnce(ctx)
		switch {
		case err == nil:
			continue
		case err == queue.ErrEmpty:
			w.queue.Wait(ctx)
		default:
			w.log.Error("task dispatch failed", "error", err)
		}
	}
}

// captureResult stores a completed task's result as a memory chunk for
// its owning agent, so a later run can surface it through the search
// engine. Best-effort: a capture failure is logged, never surfaced as a
// task failure.
func (w *Worker) captureResult(ctx context.Context, task models.Task, result string) {
	if w.memory == nil || result == "" {
		return
	}
	chunk := models.MemoryChunk{
		AgentID: task.AgentID,
		Content: result,
		Source:  models.MemorySourceTaskResult,
		Tags:    []string{"task:" + task.ID},
	}
	if _, err := w.memory.Store(ctx, chunk); err != nil {
		w.log.Warn("memory capture failed", "task_id", task.ID, "error", err)
	}
}

func taskDescription(task models.Task) string {
	if task.WorkflowID != "" {
		return fmt.Sprintf("workflow=%s node=%s", task.WorkflowID, task.NodeID)
	}
	return fmt.Sprintf("agent=%s", task.AgentID)
}

func inputToString(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
