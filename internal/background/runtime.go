// Package background implements the background-agent runtime (C8):
// long-lived or scheduled agent executions with a FIFO message inbox, a
// capped event log, per-tool-call traces, and a durability mode that
// controls checkpoint cadence.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/nexuscore/internal/cron"
	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/internal/subagent"
	"github.com/agentcore/nexuscore/pkg/models"
	"github.com/google/uuid"
)

const tableAgents = "background_agents"

// ErrNotFound is returned when a background agent id is unknown.
var ErrNotFound = errors.New("background: not found")

// ErrRunInProgress is returned by Delete when the agent has an active
// run (runtime guarantee 3: deleting an active agent is refused to
// prevent orphan processing rows), and by RunNow/run when a second
// concurrent execution is attempted (guarantee 1).
var ErrRunInProgress = errors.New("background: run already in progress")

// ErrInvalidTransition is returned when a status change does not follow
// the Active -> Running -> (Completed|Failed|Interrupted), Paused <-> Active
// state machine.
var ErrInvalidTransition = errors.New("background: invalid status transition")

// ErrShutdown is returned by RunNow once the runtime has been shut down;
// existing agents remain readable via Get/List.
var ErrShutdown = errors.New("background: runtime is shut down")

// Executor runs one background-agent invocation against resolved input
// and reports its outcome. Implementations are expected to be the agent
// runtime (C6) or CLI executor (C7); the runtime here only manages
// scheduling, persistence, and lifecycle around the call.
type Executor interface {
	Execute(ctx context.Context, agent models.BackgroundAgent, input string) (result string, err error)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger overrides the runtime's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(r *Runtime) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduling loop checks for
// due background agents.
func WithTickInterval(interval time.Duration) Option {
	return func(r *Runtime) {
		if interval > 0 {
			r.tickInterval = interval
		}
	}
}

// WithEventLogCap overrides the default capped event log size.
func WithEventLogCap(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.eventCap = n
		}
	}
}

// Runtime manages the set of background agents: CRUD, schedule
// resolution, inbox delivery, event logging, trace recording, and the
// single-live-execution run loop.
type Runtime struct {
	st       *store.Store
	executor Executor
	tracker  *subagent.Tracker
	logger   *slog.Logger
	now      func() time.Time

	tickInterval time.Duration
	eventCap     int

	mu       sync.Mutex
	started  bool
	shutdown bool
	nextFire map[string]time.Time
	seq      map[string]*uint64
	wg       sync.WaitGroup
}

// New builds a Runtime backed by st, dispatching agent invocations
// through executor and tracking live runs via tracker.
func New(st *store.Store, executor Executor, tracker *subagent.Tracker, opts ...Option) *Runtime {
	r := &Runtime{
		st:           st,
		executor:     executor,
		tracker:      tracker,
		logger:       slog.Default().With("component", "background"),
		now:          time.Now,
		tickInterval: time.Second,
		eventCap:     200,
		nextFire:     make(map[string]time.Time),
		seq:          make(map[string]*uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runtime) table() *store.Table[models.BackgroundAgent] {
	return store.NewTable[models.BackgroundAgent](r.st, tableAgents)
}

// Create persists a new background agent, defaulting id/status/timestamps.
func (r *Runtime) Create(ctx context.Context, agent models.BackgroundAgent) (models.BackgroundAgent, error) {
	if agent.Schedule != "" {
		if _, err := cron.NewSchedule(agent.Schedule, ""); err != nil {
			return models.BackgroundAgent{}, fmt.Errorf("background: invalid schedule: %w", err)
		}
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.Status == "" {
		agent.Status = models.BackgroundStatusActive
	}
	if err := r.table().Put(ctx, agent.ID, agent); err != nil {
		return models.BackgroundAgent{}, fmt.Errorf("background: create %s: %w", agent.ID, err)
	}
	return agent, nil
}

// Get fetches a background agent by id.
func (r *Runtime) Get(ctx context.Context, id string) (models.BackgroundAgent, error) {
	agent, err := r.table().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.BackgroundAgent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return models.BackgroundAgent{}, fmt.Errorf("background: get %s: %w", id, err)
	}
	return agent, nil
}

// List returns every persisted background agent.
func (r *Runtime) List(ctx context.Context) ([]models.BackgroundAgent, error) {
	entries, err := r.table().ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("background: list: %w", err)
	}
	out := make([]models.BackgroundAgent, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}

// Pause moves an Active agent to Paused. Any other current status is an
// error.
func (r *Runtime) Pause(ctx context.Context, id string) error {
	agent, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status != models.BackgroundStatusActive {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, agent.Status, models.BackgroundStatusPaused)
	}
	agent.Status = models.BackgroundStatusPaused
	return r.table().Put(ctx, id, agent)
}

// Resume moves a Paused agent back to Active.
func (r *Runtime) Resume(ctx context.Context, id string) error {
	agent, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status != models.BackgroundStatusPaused {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, agent.Status, models.BackgroundStatusActive)
	}
	agent.Status = models.BackgroundStatusActive
	return r.table().Put(ctx, id, agent)
}

// Delete removes a background agent. Refused while a run is active, to
// avoid leaving an orphan processing row behind.
func (r *Runtime) Delete(ctx context.Context, id string) error {
	agent, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if agent.Status == models.BackgroundStatusRunning {
		return fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	if err := r.table().Delete(ctx, id); err != nil {
		return fmt.Errorf("background: delete %s: %w", id, err)
	}
	r.mu.Lock()
	delete(r.nextFire, id)
	delete(r.seq, id)
	r.mu.Unlock()
	return nil
}

// RunNow forces an immediate run regardless of schedule. Returns
// ErrRunInProgress if the agent already has a live execution
// (guarantee 1: at most one live execution per background agent).
func (r *Runtime) RunNow(ctx context.Context, id string) error {
	r.mu.Lock()
	shutdown := r.shutdown
	r.mu.Unlock()
	if shutdown {
		return ErrShutdown
	}

	agent, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !agent.CanStartRun() {
		return fmt.Errorf("%w: %s", ErrRunInProgress, id)
	}
	return r.run(ctx, agent)
}

// run executes one invocation of agent synchronously: resolves the
// input template, transitions to Running, dispatches through the
// executor (tracked via the sub-agent tracker so cancellation
// propagates), appends start/completion events, and transitions to a
// terminal status.
func (r *Runtime) run(ctx context.Context, agent models.BackgroundAgent) error {
	now := r.now()
	agent.Status = models.BackgroundStatusRunning
	agent.LastRunAt = &now
	if err := r.table().Put(ctx, agent.ID, agent); err != nil {
		return fmt.Errorf("background: mark running %s: %w", agent.ID, err)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if agent.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, agent.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	state := models.SubAgentState{
		ID:              uuid.NewString(),
		ParentAgentName: agent.Name,
		TaskDescription: fmt.Sprintf("background agent %s", agent.ID),
		Status:          models.SubAgentStatusRunning,
		StartedAt:       now,
	}
	if r.tracker != nil {
		if err := r.tracker.TryRegister(1<<30, state, cancel, now); err != nil {
			cancel()
			return fmt.Errorf("background: register run %s: %w", agent.ID, err)
		}
	}

	input := resolveTemplate(agent.InputTemplate, map[string]string{
		"agent_id":   agent.ID,
		"agent_name": agent.Name,
	})
	r.appendEvent(ctx, agent.ID, fmt.Sprintf("run started: %s", agent.ID))

	result, execErr := r.executor.Execute(runCtx, agent, input)
	wasCancelled := execErr != nil && runCtx.Err() != nil
	cancel()
	finished := r.now()

	next := models.BackgroundStatusCompleted
	switch {
	case wasCancelled:
		next = models.BackgroundStatusInterrupted
	case execErr != nil:
		next = models.BackgroundStatusFailed
	}

	if r.tracker != nil {
		_ = r.tracker.MarkCompleted(state.ID, execErr == nil, result, errString(execErr), finished)
	}

	stored, err := r.Get(ctx, agent.ID)
	if err != nil {
		return err
	}
	stored.Status = next
	if err := r.table().Put(ctx, agent.ID, stored); err != nil {
		return fmt.Errorf("background: mark terminal %s: %w", agent.ID, err)
	}

	r.appendEvent(ctx, agent.ID, fmt.Sprintf("run %s: %s", next, truncate(result, 200)))
	return execErr
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// resolveTemplate substitutes {{key}} placeholders in tmpl against vars.
func resolveTemplate(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// Start runs the scheduling loop until ctx is cancelled, invoking due
// agents whose Schedule is a cron expression and whose status is
// Active.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunDue(ctx)
			}
		}
	}()
}

// Shutdown stops the scheduling loop and waits for it to exit.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDue submits every due, Active, cron-scheduled background agent for
// execution and returns the number started.
func (r *Runtime) RunDue(ctx context.Context) int {
	now := r.now()
	agents, err := r.List(ctx)
	if err != nil {
		r.logger.Warn("background list failed", "error", err)
		return 0
	}

	count := 0
	for _, agent := range agents {
		if agent.Schedule == "" || agent.Status != models.BackgroundStatusActive {
			continue
		}
		r.mu.Lock()
		due, tracked := r.nextFire[agent.ID]
		r.mu.Unlock()
		if !tracked {
			sched, err := cron.NewSchedule(agent.Schedule, "")
			if err != nil {
				r.logger.Warn("background schedule invalid", "id", agent.ID, "error", err)
				continue
			}
			due = sched.Next(now)
			r.mu.Lock()
			r.nextFire[agent.ID] = due
			r.mu.Unlock()
			continue
		}
		if now.Before(due) {
			continue
		}
		if err := r.run(ctx, agent); err != nil {
			r.logger.Warn("background run failed", "id", agent.ID, "error", err)
		}
		sched, err := cron.NewSchedule(agent.Schedule, "")
		if err == nil {
			r.mu.Lock()
			r.nextFire[agent.ID] = sched.Next(now)
			r.mu.Unlock()
		}
		count++
	}
	return count
}
