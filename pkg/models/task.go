package models

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
	TaskStatusTimedOut  TaskStatus = "timed_out"
)

// IsTerminal reports whether a status can no longer transition.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimedOut:
		return true
	default:
		return false
	}
}

// TaskContext carries execution-scoped variables, a secret accessor name,
// and an optional interpreter handle used by CLI agents.
type TaskContext struct {
	Variables       map[string]any `json:"variables,omitempty"`
	SecretAccessor  string         `json:"secret_accessor,omitempty"`
	InterpreterName string         `json:"interpreter_name,omitempty"`
}

// Task is the unit of execution tracked by the task queue (C2).
//
// Priority is a 64-bit monotonic timestamp with nanosecond resolution;
// TaskID breaks ties so the composite pending key is unique even when two
// tasks are enqueued at the same instant.
type Task struct {
	ID          string `json:"id"`
	ExecutionID string `json:"execution_id"`
	AgentID     string `json:"agent_id"`
	WorkflowID  string `json:"workflow_id,omitempty"`
	NodeID      string `json:"node_id,omitempty"`

	Input  any        `json:"input,omitempty"`
	Status TaskStatus `json:"status"`

	Context  TaskContext `json:"context,omitempty"`
	Priority uint64      `json:"priority"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// PendingKey returns the composite key used to order a task within the
// pending table: a 20-digit zero-padded priority (so lexicographic order
// equals numeric order across the full uint64 range) followed by the
// task id to break ties deterministically.
func (t Task) PendingKey() string {
	return fmt.Sprintf("%020d:%s", t.Priority, t.ID)
}

// NewPriority derives a monotonic priority value from a timestamp. Callers
// supply "now" explicitly (instead of reading the clock here) so that
// behavior under clock skew is a caller policy, not a hidden assumption:
// the recommended policy is to never let a newly derived priority be
// lower than the highest priority issued so far.
func NewPriority(now time.Time) uint64 {
	if now.IsZero() {
		return 0
	}
	return uint64(now.UnixNano())
}
