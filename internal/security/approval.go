package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
	"github.com/google/uuid"
)

const tableApprovals = "security_approvals"

// NotifyFunc is called whenever a new approval needs external attention,
// or an approval's status changes (e.g. lazily expired).
type NotifyFunc func(models.PendingApproval)

// ApprovalManager implements the approval lifecycle (C14): create with
// dedup, approve/reject idempotently, and lazy expiry on status checks.
type ApprovalManager struct {
	st     *store.Store
	log    *slog.Logger
	notify NotifyFunc

	mu sync.Mutex
}

// NewApprovalManager builds an ApprovalManager backed by st. notify may
// be nil.
func NewApprovalManager(st *store.Store, notify NotifyFunc) *ApprovalManager {
	return &ApprovalManager{
		st:     st,
		log:    slog.Default().With("component", "security.approval"),
		notify: notify,
	}
}

func (m *ApprovalManager) table() *store.Table[models.PendingApproval] {
	return store.NewTable[models.PendingApproval](m.st, tableApprovals)
}

// CreateApproval returns the id of a new Pending approval, or of an
// existing Pending approval for the same (taskID, command) pair if one
// is already outstanding (dedup).
func (m *ApprovalManager) CreateApproval(ctx context.Context, taskID, agentID, command, workdir string, now time.Time, timeout time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl := m.table()
	entries, err := tbl.ScanPrefix(ctx, "", 0)
	if err != nil {
		return "", fmt.Errorf("security: create approval: %w", err)
	}
	dedupKey := (models.PendingApproval{TaskID: taskID, Command: command}).DedupKey()
	for _, e := range entries {
		if e.Value.Status == models.ApprovalStatusPending && e.Value.DedupKey() == dedupKey {
			return e.Value.ID, nil
		}
	}

	approval := models.PendingApproval{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		AgentID:   agentID,
		Command:   command,
		Workdir:   workdir,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
		Status:    models.ApprovalStatusPending,
	}
	if err := tbl.Put(ctx, approval.ID, approval); err != nil {
		return "", fmt.Errorf("security: create approval: %w", err)
	}
	if m.notify != nil {
		m.notify(approval)
	}
	return approval.ID, nil
}

// Approve marks an approval Approved. Re-approving an already-approved
// request is a no-op that returns the stored state.
func (m *ApprovalManager) Approve(ctx context.Context, id string) (models.PendingApproval, error) {
	return m.resolve(ctx, id, models.ApprovalStatusApproved, "")
}

// Reject marks an approval Rejected with reason. Re-rejecting an
// already-rejected request is a no-op that returns the stored state.
func (m *ApprovalManager) Reject(ctx context.Context, id, reason string) (models.PendingApproval, error) {
	return m.resolve(ctx, id, models.ApprovalStatusRejected, reason)
}

func (m *ApprovalManager) resolve(ctx context.Context, id string, status models.ApprovalStatus, reason string) (models.PendingApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl := m.table()
	approval, err := tbl.Get(ctx, id)
	if err != nil {
		return models.PendingApproval{}, fmt.Errorf("security: resolve approval: %w", err)
	}
	if approval.Status == status {
		return approval, nil
	}
	if approval.Status != models.ApprovalStatusPending {
		// Already resolved differently; idempotent responses only cover
		// re-issuing the same decision, not flipping a decided request.
		return approval, nil
	}
	approval.Status = status
	approval.RejectionReason = reason
	if err := tbl.Put(ctx, id, approval); err != nil {
		return models.PendingApproval{}, fmt.Errorf("security: resolve approval: %w", err)
	}
	return approval, nil
}

// CheckStatus returns the current status of an approval, lazily
// transitioning it to Expired if it is still Pending and past its
// deadline.
func (m *ApprovalManager) CheckStatus(ctx context.Context, id string, now time.Time) (models.PendingApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tbl := m.table()
	approval, err := tbl.Get(ctx, id)
	if err != nil {
		return models.PendingApproval{}, fmt.Errorf("security: check status: %w", err)
	}
	if approval.IsExpired(now) {
		approval.Status = models.ApprovalStatusExpired
		if err := tbl.Put(ctx, id, approval); err != nil {
			return models.PendingApproval{}, fmt.Errorf("security: check status: %w", err)
		}
		if m.notify != nil {
			m.notify(approval)
		}
	}
	return approval, nil
}

// ListPending returns every approval currently Pending for agentID.
func (m *ApprovalManager) ListPending(ctx context.Context, agentID string) ([]models.PendingApproval, error) {
	entries, err := m.table().ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("security: list pending: %w", err)
	}
	var out []models.PendingApproval
	for _, e := range entries {
		if e.Value.AgentID == agentID && e.Value.Status == models.ApprovalStatusPending {
			out = append(out, e.Value)
		}
	}
	return out, nil
}
