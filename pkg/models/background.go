package models

import "time"

// MemoryScope selects where a background agent's memory chunks live.
type MemoryScope string

const (
	MemoryScopeSharedAgent       MemoryScope = "shared_agent"
	MemoryScopePerBackgroundAgent MemoryScope = "per_background_agent"
)

// DurabilityMode controls how often a background agent's run state is
// checkpointed against the store.
type DurabilityMode string

const (
	DurabilitySync  DurabilityMode = "sync"  // checkpoint before each tool call
	DurabilityAsync DurabilityMode = "async" // checkpoint on a background cadence
	DurabilityExit  DurabilityMode = "exit"  // checkpoint only on completion
)

// BackgroundAgentStatus is the lifecycle state of a background agent.
type BackgroundAgentStatus string

const (
	BackgroundStatusActive      BackgroundAgentStatus = "active"
	BackgroundStatusPaused      BackgroundAgentStatus = "paused"
	BackgroundStatusRunning     BackgroundAgentStatus = "running"
	BackgroundStatusCompleted   BackgroundAgentStatus = "completed"
	BackgroundStatusFailed      BackgroundAgentStatus = "failed"
	BackgroundStatusInterrupted BackgroundAgentStatus = "interrupted"
)

// InboxSource identifies who authored a background agent inbox message.
type InboxSource string

const (
	InboxSourceUser  InboxSource = "user"
	InboxSourceAgent InboxSource = "agent"
	InboxSourceSystem InboxSource = "system"
)

// InboxMessage is a single FIFO entry delivered to a running background
// agent.
type InboxMessage struct {
	ID        string      `json:"id"`
	Source    InboxSource `json:"source"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// EventLogEntry is one append-only entry in a background agent's capped
// event log.
type EventLogEntry struct {
	Sequence  uint64    `json:"sequence"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolTrace is a structured record of one tool invocation made by a
// background agent run.
type ToolTrace struct {
	ToolCallID string        `json:"tool_call_id"`
	ToolName   string        `json:"tool_name"`
	Success    bool          `json:"success"`
	DurationMs int64         `json:"duration_ms"`
	OutputRef  string        `json:"output_ref,omitempty"` // path to overflow output, tailed on read
}

// Deliverable is a named artifact produced by a background agent run.
type Deliverable struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	URI       string    `json:"uri,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ResourceLimits bounds what a single background agent run may consume.
type ResourceLimits struct {
	MaxToolCalls   int   `json:"max_tool_calls,omitempty"`
	MaxWallClockMs int64 `json:"max_wall_clock_ms,omitempty"`
}

// BackgroundAgent is a managed, persistent agent with a schedule, inbox,
// event log, and durability mode (C8).
type BackgroundAgent struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	OwningAgentID string         `json:"owning_agent_id"`

	Schedule      string `json:"schedule,omitempty"` // cron expression, empty means manual
	InputTemplate string `json:"input_template,omitempty"`

	MemoryScope    MemoryScope    `json:"memory_scope"`
	Durability     DurabilityMode `json:"durability"`
	Timeout        time.Duration  `json:"timeout,omitempty"`
	ResourceLimits ResourceLimits `json:"resource_limits,omitempty"`

	LastRunAt *time.Time            `json:"last_run_at,omitempty"`
	Status    BackgroundAgentStatus `json:"status"`

	Inbox           []InboxMessage  `json:"-"`
	EventLog        []EventLogEntry `json:"-"`
	Deliverables    []Deliverable   `json:"-"`
	ContinuationRef string          `json:"continuation_ref,omitempty"`
}

// CanStartRun reports whether a new run may begin, enforcing "at most one
// live execution per background agent at any time".
func (b BackgroundAgent) CanStartRun() bool {
	return b.Status != BackgroundAgentStatus(BackgroundStatusRunning)
}

// EventLogTail returns the last n entries of the event log, or the whole
// log if it has fewer than n entries.
func EventLogTail(log []EventLogEntry, n int) []EventLogEntry {
	if n <= 0 || len(log) <= n {
		return log
	}
	return log[len(log)-n:]
}

// AppendCapped appends an entry to a capped event log, dropping the
// oldest entries once the cap is exceeded.
func AppendCapped(log []EventLogEntry, entry EventLogEntry, cap int) []EventLogEntry {
	log = append(log, entry)
	if cap > 0 && len(log) > cap {
		log = log[len(log)-cap:]
	}
	return log
}
