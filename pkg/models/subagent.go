package models

import "time"

// SubAgentStatus is the lifecycle state of a tracked sub-agent run.
type SubAgentStatus string

const (
	SubAgentStatusRunning   SubAgentStatus = "running"
	SubAgentStatusCompleted SubAgentStatus = "completed"
	SubAgentStatusFailed    SubAgentStatus = "failed"
	SubAgentStatusCancelled SubAgentStatus = "cancelled"
	SubAgentStatusTimedOut  SubAgentStatus = "timed_out"
)

// IsTerminal reports whether this status is a final state a sub-agent run
// cannot transition out of.
func (s SubAgentStatus) IsTerminal() bool {
	switch s {
	case SubAgentStatusCompleted, SubAgentStatusFailed, SubAgentStatusCancelled, SubAgentStatusTimedOut:
		return true
	default:
		return false
	}
}

// SubAgentState tracks one spawned child-agent run under the parent
// agent's concurrency cap (C4). Cancelled and TimedOut are idempotent
// terminal states: once set, a late Completed/Failed transition must be
// rejected rather than overwrite them.
type SubAgentState struct {
	ID              string         `json:"id"`
	ParentAgentName string         `json:"parent_agent_name"`
	TaskDescription string         `json:"task_description"`
	Status          SubAgentStatus `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CanTransitionTo reports whether moving from the current status to next
// is allowed under the idempotent-terminal-state invariant: once in a
// terminal state, only remaining in that same state is permitted.
func (s SubAgentState) CanTransitionTo(next SubAgentStatus) bool {
	if !s.Status.IsTerminal() {
		return true
	}
	return s.Status == next
}
