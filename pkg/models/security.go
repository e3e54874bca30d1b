package models

import "time"

// PolicyAction is the outcome of evaluating a command against a
// SecurityPolicy.
type PolicyAction string

const (
	PolicyActionAllow           PolicyAction = "allow"
	PolicyActionBlock           PolicyAction = "block"
	PolicyActionRequireApproval PolicyAction = "require_approval"
)

// SecurityPolicy holds the three ordered glob-pattern lists evaluated for
// every command a CLI agent attempts to run, plus a fallback action and
// the approval timeout applied to anything that lands in
// approval_required.
//
// Evaluation order is fixed: Blocklist, then Allowlist, then
// ApprovalRequired, then DefaultAction.
type SecurityPolicy struct {
	Blocklist        []string      `json:"blocklist"`
	Allowlist        []string      `json:"allowlist"`
	ApprovalRequired []string      `json:"approval_required"`
	DefaultAction    PolicyAction  `json:"default_action"`
	ApprovalTimeout  time.Duration `json:"approval_timeout"`
}

// PolicyDecision is the result of evaluating a command string against a
// SecurityPolicy.
type PolicyDecision struct {
	Action         PolicyAction `json:"action"`
	MatchedPattern string       `json:"matched_pattern,omitempty"`
	Reason         string       `json:"reason,omitempty"`
}

// ApprovalStatus is the lifecycle state of a PendingApproval.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// PendingApproval is a single user-gated command awaiting a decision. At
// most one Pending approval may exist for a given (TaskID, Command) pair
// at any time; a duplicate create_approval request must return the
// existing id instead of creating a second row.
type PendingApproval struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id"`
	AgentID  string `json:"agent_id"`
	Command  string `json:"command"`
	Workdir  string `json:"workdir,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Status           ApprovalStatus `json:"status"`
	RejectionReason  string         `json:"rejection_reason,omitempty"`
}

// DedupKey returns the key used to detect a duplicate pending request for
// the same task and command.
func (p PendingApproval) DedupKey() string {
	return p.TaskID + "\x00" + p.Command
}

// IsExpired reports whether this still-Pending approval has passed its
// deadline as of now. Expiry is observed lazily by callers (e.g.
// check_status), not by a background sweep.
func (p PendingApproval) IsExpired(now time.Time) bool {
	return p.Status == ApprovalStatusPending && now.After(p.ExpiresAt)
}
