// Package cron implements the cron scheduler (C9): six-field cron
// expressions with an optional timezone that submit a workflow into the
// task queue (C2) on each fire.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
	"github.com/google/uuid"
)

const tableTriggers = "cron_triggers"

// ErrShutdown is returned by AddSchedule once the scheduler has been shut
// down: new schedules are rejected, but existing state remains available
// for introspection.
var ErrShutdown = errors.New("cron: scheduler is shut down")

// QueueSubmitter is the task queue collaborator (C2) the scheduler
// submits workflows into on fire.
type QueueSubmitter interface {
	Submit(ctx context.Context, task models.Task, now time.Time) (string, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval overrides how often the scheduler checks for due
// triggers.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

// Scheduler runs cron triggers, submitting their workflow into the queue
// whenever their schedule fires.
type Scheduler struct {
	st     *store.Store
	queue  QueueSubmitter
	logger *slog.Logger
	now    func() time.Time

	tickInterval time.Duration

	mu       sync.Mutex
	started  bool
	shutdown bool
	nextFire map[string]time.Time
	wg       sync.WaitGroup
}

// New builds a Scheduler backed by st, submitting due workflows into
// queue.
func New(st *store.Store, queue QueueSubmitter, opts ...Option) *Scheduler {
	s := &Scheduler{
		st:           st,
		queue:        queue,
		logger:       slog.Default().With("component", "cron"),
		now:          time.Now,
		tickInterval: time.Second,
		nextFire:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) table() *store.Table[models.CronTrigger] {
	return store.NewTable[models.CronTrigger](s.st, tableTriggers)
}

// AddSchedule validates and persists trigger, computing its initial fire
// time. Returns ErrShutdown if the scheduler has already been shut down.
func (s *Scheduler) AddSchedule(ctx context.Context, trigger models.CronTrigger, now time.Time) (string, error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return "", ErrShutdown
	}
	s.mu.Unlock()

	sched, err := NewSchedule(trigger.CronExpr, trigger.Timezone)
	if err != nil {
		return "", err
	}
	if trigger.ID == "" {
		trigger.ID = uuid.NewString()
	}
	trigger.Enabled = true
	trigger.CreatedAt = now

	if err := s.table().Put(ctx, trigger.ID, trigger); err != nil {
		return "", fmt.Errorf("cron: add schedule %s: %w", trigger.ID, err)
	}

	s.mu.Lock()
	s.nextFire[trigger.ID] = sched.Next(now)
	s.mu.Unlock()

	return trigger.ID, nil
}

// RemoveSchedule deletes a trigger by id. Removing an id that does not
// exist is not an error (idempotent).
func (s *Scheduler) RemoveSchedule(ctx context.Context, id string) error {
	if err := s.table().Delete(ctx, id); err != nil {
		return fmt.Errorf("cron: remove schedule %s: %w", id, err)
	}
	s.mu.Lock()
	delete(s.nextFire, id)
	s.mu.Unlock()
	return nil
}

// List returns every persisted trigger, available even after shutdown.
func (s *Scheduler) List(ctx context.Context) ([]models.CronTrigger, error) {
	entries, err := s.table().ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("cron: list: %w", err)
	}
	out := make([]models.CronTrigger, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}

// Start runs the scheduler loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunDue(ctx)
			}
		}
	}()
}

// Shutdown stops accepting new schedules and waits for the run loop to
// exit. Existing trigger state remains readable via List.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDue submits every due, enabled trigger's workflow into the queue and
// returns the number submitted. Exposed directly so tests (and manual
// invocation) don't need to wait on the tick interval.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()
	triggers, err := s.List(ctx)
	if err != nil {
		s.logger.Warn("cron list failed", "error", err)
		return 0
	}

	count := 0
	for _, trigger := range triggers {
		if !trigger.Enabled {
			continue
		}
		s.mu.Lock()
		due, tracked := s.nextFire[trigger.ID]
		s.mu.Unlock()
		if !tracked {
			sched, err := NewSchedule(trigger.CronExpr, trigger.Timezone)
			if err != nil {
				s.logger.Warn("cron schedule invalid", "id", trigger.ID, "error", err)
				continue
			}
			due = sched.Next(now)
			s.mu.Lock()
			s.nextFire[trigger.ID] = due
			s.mu.Unlock()
			continue
		}
		if now.Before(due) {
			continue
		}
		if err := s.fire(ctx, trigger, now); err != nil {
			s.logger.Warn("cron fire failed", "id", trigger.ID, "error", err)
			continue
		}
		count++
	}
	return count
}

func (s *Scheduler) fire(ctx context.Context, trigger models.CronTrigger, now time.Time) error {
	task := models.Task{
		ID:         uuid.NewString(),
		AgentID:    trigger.AgentID,
		WorkflowID: trigger.WorkflowID,
		Input:      trigger.Input,
		Status:     models.TaskStatusPending,
		Priority:   models.NewPriority(now),
		CreatedAt:  now,
	}
	if _, err := s.queue.Submit(ctx, task, now); err != nil {
		return fmt.Errorf("submit workflow: %w", err)
	}

	trigger.TriggerCount++
	trigger.LastTriggeredAt = &now
	if err := s.table().Put(ctx, trigger.ID, trigger); err != nil {
		return fmt.Errorf("update counters: %w", err)
	}

	sched, err := NewSchedule(trigger.CronExpr, trigger.Timezone)
	if err != nil {
		return fmt.Errorf("recompute next fire: %w", err)
	}
	s.mu.Lock()
	s.nextFire[trigger.ID] = sched.Next(now)
	s.mu.Unlock()
	return nil
}
