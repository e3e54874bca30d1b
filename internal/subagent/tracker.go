// Package subagent implements the sub-agent tracker (C4): a concurrency
// cap over in-flight child-agent runs with TOCTOU-safe registration, a
// one-shot wait/wait-any interface, and an idempotent-terminal-state
// completion path.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcore/nexuscore/pkg/models"
)

// gcAfter is how long a terminal state is kept before opportunistic GC
// reclaims it.
const gcAfter = 5 * time.Minute

// AbortFunc cancels the underlying run when invoked.
type AbortFunc func()

// ErrAtCapacity is returned by TryRegister when running_count() is
// already at max_parallel.
var ErrAtCapacity = errors.New("subagent: at capacity")

// ErrNotFound is returned by operations on an unknown id.
var ErrNotFound = errors.New("subagent: not found")

// Tracker maintains the three concurrent maps spec.md §4.4 calls for
// (states, abort handles, one-shot waiters) behind a single spawnLock
// serializing the count-check-and-register pair, plus a finer mu
// guarding the maps themselves for everything else.
type Tracker struct {
	log *slog.Logger

	spawnLock sync.Mutex

	mu      sync.RWMutex
	states  map[string]*models.SubAgentState
	handles map[string]AbortFunc
	waiters map[string]chan models.SubAgentState

	completeMu sync.Mutex
	completeCh chan models.SubAgentState
}

// New builds an empty Tracker.
func New() *Tracker {
	return &Tracker{
		log:        slog.Default().With("component", "subagent"),
		states:     make(map[string]*models.SubAgentState),
		handles:    make(map[string]AbortFunc),
		waiters:    make(map[string]chan models.SubAgentState),
		completeCh: make(chan models.SubAgentState, 64),
	}
}

// RunningCount returns the number of tracked states not yet in a
// terminal status.
func (t *Tracker) RunningCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.states {
		if !s.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// TryRegister registers a new running state if doing so would keep
// RunningCount at or under maxParallel, performing the capacity check
// and the registration atomically under spawnLock to prevent a
// check-then-act race between concurrent callers. It also opportunistically
// garbage-collects terminal states older than five minutes.
func (t *Tracker) TryRegister(maxParallel int, state models.SubAgentState, abort AbortFunc, now time.Time) error {
	t.spawnLock.Lock()
	defer t.spawnLock.Unlock()

	t.gc(now)

	if t.RunningCount() >= maxParallel {
		return fmt.Errorf("%w: max_parallel=%d", ErrAtCapacity, maxParallel)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	stateCopy := state
	t.states[state.ID] = &stateCopy
	if abort != nil {
		t.handles[state.ID] = abort
	}
	t.waiters[state.ID] = make(chan models.SubAgentState, 1)
	return nil
}

// gc removes terminal states whose CompletedAt is older than gcAfter.
// Callers must hold spawnLock.
func (t *Tracker) gc(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, s := range t.states {
		if s.Status.IsTerminal() && s.CompletedAt != nil && now.Sub(*s.CompletedAt) > gcAfter {
			delete(t.states, id)
			delete(t.handles, id)
			delete(t.waiters, id)
		}
	}
}

// Get returns a copy of the current state for id.
func (t *Tracker) Get(id string) (models.SubAgentState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[id]
	if !ok {
		return models.SubAgentState{}, false
	}
	return *s, true
}

// MarkCompleted records a terminal outcome for id. If the state is
// already Cancelled or TimedOut, the new outcome is dropped and the
// existing terminal status is preserved — CanTransitionTo enforces this
// idempotent-terminal-state invariant. The abort handle and waiter
// channel are always released, since the run is finished either way.
func (t *Tracker) MarkCompleted(id string, success bool, result, errMsg string, now time.Time) error {
	t.mu.Lock()
	s, ok := t.states[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := models.SubAgentStatusCompleted
	if !success {
		next = models.SubAgentStatusFailed
	}

	if s.CanTransitionTo(next) {
		s.Status = next
		s.Result = result
		s.Error = errMsg
		s.CompletedAt = &now
	}

	waiter := t.waiters[id]
	delete(t.handles, id)
	delete(t.waiters, id)
	final := *s
	t.mu.Unlock()

	if waiter != nil {
		waiter <- final
		close(waiter)
	}
	t.publishComplete(final)
	return nil
}

// Cancel aborts the underlying run (if a handle is registered),
// transitions the state to Cancelled, and records completed_at.
func (t *Tracker) Cancel(id string, now time.Time) error {
	t.mu.Lock()
	s, ok := t.states[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	abort := t.handles[id]
	delete(t.handles, id)

	if s.CanTransitionTo(models.SubAgentStatusCancelled) {
		s.Status = models.SubAgentStatusCancelled
		s.CompletedAt = &now
	}

	waiter := t.waiters[id]
	delete(t.waiters, id)
	final := *s
	t.mu.Unlock()

	if abort != nil {
		abort()
	}
	if waiter != nil {
		waiter <- final
		close(waiter)
	}
	t.publishComplete(final)
	return nil
}

// Wait blocks until id reaches a terminal state, or ctx is cancelled. If
// the result is already recorded it returns immediately.
func (t *Tracker) Wait(ctx context.Context, id string) (models.SubAgentState, error) {
	t.mu.RLock()
	s, ok := t.states[id]
	if !ok {
		t.mu.RUnlock()
		return models.SubAgentState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.Status.IsTerminal() {
		final := *s
		t.mu.RUnlock()
		return final, nil
	}
	waiter := t.waiters[id]
	t.mu.RUnlock()

	if waiter == nil {
		// Waiter already consumed by a completing writer between the
		// terminal check above and here; fall back to current state.
		if s2, ok := t.Get(id); ok {
			return s2, nil
		}
		return models.SubAgentState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	select {
	case final, ok := <-waiter:
		if !ok {
			if s2, ok := t.Get(id); ok {
				return s2, nil
			}
			return models.SubAgentState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return final, nil
	case <-ctx.Done():
		return models.SubAgentState{}, ctx.Err()
	}
}

// WaitAny blocks until any tracked run completes, or ctx is cancelled.
func (t *Tracker) WaitAny(ctx context.Context) (models.SubAgentState, error) {
	select {
	case final := <-t.completeCh:
		return final, nil
	case <-ctx.Done():
		return models.SubAgentState{}, ctx.Err()
	}
}

func (t *Tracker) publishComplete(final models.SubAgentState) {
	select {
	case t.completeCh <- final:
	default:
		// Best-effort: wait_any only serves live listeners; a full buffer
		// means nobody is waiting right now, so drop rather than block.
	}
}

// ListRunning returns a snapshot of every non-terminal tracked state.
func (t *Tracker) ListRunning() []models.SubAgentState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []models.SubAgentState
	for _, s := range t.states {
		if !s.Status.IsTerminal() {
			out = append(out, *s)
		}
	}
	return out
}
