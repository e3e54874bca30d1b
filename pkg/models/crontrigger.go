package models

import "time"

// CronTrigger is a persisted schedule that submits a workflow into the
// task queue (C2) whenever its cron expression fires.
type CronTrigger struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	CronExpr string `json:"cron_expr"`
	Timezone string `json:"timezone,omitempty"`

	AgentID    string `json:"agent_id"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Input      any    `json:"input,omitempty"`

	Enabled bool `json:"enabled"`

	TriggerCount    int        `json:"trigger_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
