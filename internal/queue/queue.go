// Package queue implements the task queue (C2): a three-table
// pending/processing/completed design with atomic pop-and-transition
// semantics, backed by internal/store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
)

const (
	tablePending    = "queue_pending"
	tableProcessing = "queue_processing"
	tableCompleted  = "queue_completed"
)

// ErrEmpty is returned by atomic pop when there is no pending work.
var ErrEmpty = errors.New("queue: no pending tasks")

// Queue is the task queue. Workers call Pop to atomically claim the next
// task; waiter notification lets idle workers wake immediately on new
// work instead of relying solely on poll timeouts.
type Queue struct {
	st  *store.Store
	log *slog.Logger

	mu      sync.Mutex
	waiters []chan struct{}
}

// New binds a Queue to the given store.
func New(st *store.Store) *Queue {
	return &Queue{
		st:  st,
		log: slog.Default().With("component", "queue"),
	}
}

// Submit enqueues a new task. If the task has no priority set, it is
// derived from now.
func (q *Queue) Submit(ctx context.Context, task models.Task, now time.Time) (string, error) {
	if task.Priority == 0 {
		task.Priority = models.NewPriority(now)
	}
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	pending := store.NewTable[models.Task](q.st, tablePending)
	if err := pending.Put(ctx, task.PendingKey(), task); err != nil {
		return "", fmt.Errorf("queue: submit: %w", err)
	}
	q.notifyWaiters()
	return task.ID, nil
}

// Pop atomically claims the lexicographically smallest pending task: it
// reads the task, invokes onTask to mutate it (typically marking it
// Running and stamping StartedAt), writes the mutated task to
// processing, removes the pending entry, and commits all of that in one
// transaction. If onTask returns an error or the commit fails, nothing
// is persisted and the task remains pending.
func (q *Queue) Pop(ctx context.Context, onTask func(*models.Task)) (models.Task, error) {
	var claimed models.Task
	found := false

	err := q.st.WithTx(ctx, func(tx *store.Tx) error {
		pending, err := store.TableTx[models.Task](ctx, tx, tablePending)
		if err != nil {
			return err
		}
		entries, err := pending.ScanPrefix(ctx, "")
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		head := entries[0]
		task := head.Value
		onTask(&task)

		processing, err := store.TableTx[models.Task](ctx, tx, tableProcessing)
		if err != nil {
			return err
		}
		if err := processing.Put(ctx, task.ID, task); err != nil {
			return err
		}
		if err := pending.Delete(ctx, head.Key); err != nil {
			return err
		}
		claimed = task
		found = true
		return nil
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("queue: pop: %w", err)
	}
	if !found {
		return models.Task{}, ErrEmpty
	}
	return claimed, nil
}

// MoveToCompleted moves a task from processing to completed.
func (q *Queue) MoveToCompleted(ctx context.Context, task models.Task) error {
	return q.st.WithTx(ctx, func(tx *store.Tx) error {
		processing, err := store.TableTx[models.Task](ctx, tx, tableProcessing)
		if err != nil {
			return err
		}
		completed, err := store.TableTx[models.Task](ctx, tx, tableCompleted)
		if err != nil {
			return err
		}
		if err := completed.Put(ctx, task.ID, task); err != nil {
			return err
		}
		return processing.Delete(ctx, task.ID)
	})
}

// RemoveFromProcessing removes a task id from the processing table
// without moving it to completed (used on cancel/timeout paths that
// persist their own terminal record elsewhere first).
func (q *Queue) RemoveFromProcessing(ctx context.Context, taskID string) error {
	processing := store.NewTable[models.Task](q.st, tableProcessing)
	return processing.Delete(ctx, taskID)
}

// GetFromAny looks up a task by id, checking processing, then completed,
// then scanning pending (pending is keyed by composite priority+id, so
// it requires a scan rather than a direct lookup).
func (q *Queue) GetFromAny(ctx context.Context, taskID string) (models.Task, error) {
	processing := store.NewTable[models.Task](q.st, tableProcessing)
	if t, err := processing.Get(ctx, taskID); err == nil {
		return t, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Task{}, err
	}

	completed := store.NewTable[models.Task](q.st, tableCompleted)
	if t, err := completed.Get(ctx, taskID); err == nil {
		return t, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Task{}, err
	}

	pending := store.NewTable[models.Task](q.st, tablePending)
	entries, err := pending.ScanPrefix(ctx, "", 0)
	if err != nil {
		return models.Task{}, err
	}
	for _, e := range entries {
		if e.Value.ID == taskID {
			return e.Value, nil
		}
	}
	return models.Task{}, store.ErrNotFound
}

// PendingCount reports how many tasks are currently pending.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	pending := store.NewTable[models.Task](q.st, tablePending)
	return pending.Count(ctx)
}

// Wait blocks until either new work is submitted or the context is
// cancelled/times out, whichever comes first. It is a best-effort,
// at-least-once wake signal: a worker that misses a notification simply
// re-polls on its own timeout, so a missed wake never strands work.
func (q *Queue) Wait(ctx context.Context) {
	ch := make(chan struct{}, 1)
	q.mu.Lock()
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

func (q *Queue) notifyWaiters() {
	q.mu.Lock()
	waiters := q.waiters
	q.waiters = nil
	q.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
