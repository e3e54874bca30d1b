// Package models defines the core data types for the orchestration core.
package models

import "time"

// TaskEventType identifies the kind of task execution event.
type TaskEventType string

const (
	TaskEventStarted   TaskEventType = "started"
	TaskEventOutput    TaskEventType = "output"
	TaskEventProgress  TaskEventType = "progress"
	TaskEventCompleted TaskEventType = "completed"
	TaskEventFailed    TaskEventType = "failed"
	TaskEventCancelled TaskEventType = "cancelled"
	TaskEventHeartbeat TaskEventType = "heartbeat"
)

// TaskEvent is the unified event model streamed to subscribers per task (C13).
// Exactly one payload field is populated for a given Type. Sequence is
// monotonic per task so subscribers can detect gaps or reordering.
type TaskEvent struct {
	Version  int           `json:"version"`
	Type     TaskEventType `json:"type"`
	TaskID   string        `json:"task_id"`
	Time     time.Time     `json:"time"`
	Sequence uint64        `json:"seq"`

	Started   *TaskStartedPayload   `json:"started,omitempty"`
	Output    *TaskOutputPayload    `json:"output,omitempty"`
	Progress  *TaskProgressPayload  `json:"progress,omitempty"`
	Completed *TaskCompletedPayload `json:"completed,omitempty"`
	Failed    *TaskFailedPayload    `json:"failed,omitempty"`
	Cancelled *TaskCancelledPayload `json:"cancelled,omitempty"`
	Heartbeat *TaskHeartbeatPayload `json:"heartbeat,omitempty"`
}

// TaskStartedPayload announces the beginning of a task execution.
type TaskStartedPayload struct {
	TaskName      string `json:"task_name"`
	AgentID       string `json:"agent_id"`
	ExecutionMode string `json:"execution_mode"` // "llm" or "cli"
}

// TaskOutputPayload carries streamed process/tool output.
type TaskOutputPayload struct {
	Text       string `json:"text"`
	IsStderr   bool   `json:"is_stderr,omitempty"`
	IsComplete bool   `json:"is_complete,omitempty"`
}

// TaskProgressPayload reports incremental execution phase.
type TaskProgressPayload struct {
	Phase   string         `json:"phase"`
	Percent *float64       `json:"percent,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// TaskCompletedPayload reports a successful terminal transition.
type TaskCompletedPayload struct {
	Result     string         `json:"result"`
	DurationMs int64          `json:"duration_ms"`
	Stats      map[string]any `json:"stats,omitempty"`
}

// TaskFailedPayload reports a failed terminal transition.
type TaskFailedPayload struct {
	Error       string `json:"error"`
	ErrorCode   string `json:"error_code,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Recoverable bool   `json:"recoverable"`
}

// TaskCancelledPayload reports a cancelled or timed-out terminal transition.
type TaskCancelledPayload struct {
	Reason     string `json:"reason"`
	DurationMs int64  `json:"duration_ms"`
}

// TaskHeartbeatPayload is emitted periodically while a task is in flight.
type TaskHeartbeatPayload struct {
	ElapsedMs int64 `json:"elapsed_ms"`
}
