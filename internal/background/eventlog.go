package background

import (
	"context"
	"fmt"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
)

const tableEvents = "background_events"

func (r *Runtime) eventTable() *store.Table[models.EventLogEntry] {
	return store.NewTable[models.EventLogEntry](r.st, tableEvents)
}

// appendEvent is the internal, best-effort event log writer used by the
// run loop: a logging failure must never fail the run it's describing.
func (r *Runtime) appendEvent(ctx context.Context, agentID, message string) {
	if err := r.AppendEvent(ctx, agentID, message); err != nil {
		r.logger.Warn("background event append failed", "agent_id", agentID, "error", err)
	}
}

// AppendEvent appends an entry to agentID's capped, append-only event
// log. Once the log exceeds the configured cap, the oldest entries are
// pruned so storage stays bounded.
func (r *Runtime) AppendEvent(ctx context.Context, agentID, message string) error {
	seq := r.nextSeq(agentID)
	entry := models.EventLogEntry{
		Sequence:  seq,
		Message:   message,
		CreatedAt: r.now(),
	}
	if err := r.eventTable().Put(ctx, seqKey(agentID, seq), entry); err != nil {
		return fmt.Errorf("background: append event %s: %w", agentID, err)
	}
	return r.pruneEvents(ctx, agentID)
}

// pruneEvents deletes the oldest event entries for agentID once the log
// exceeds the configured cap.
func (r *Runtime) pruneEvents(ctx context.Context, agentID string) error {
	entries, err := r.eventTable().ScanPrefix(ctx, agentID+"/", 0)
	if err != nil {
		return fmt.Errorf("background: prune events %s: %w", agentID, err)
	}
	if len(entries) <= r.eventCap {
		return nil
	}
	overflow := len(entries) - r.eventCap
	for _, e := range entries[:overflow] {
		if err := r.eventTable().Delete(ctx, e.Key); err != nil {
			return fmt.Errorf("background: prune events %s: %w", agentID, err)
		}
	}
	return nil
}

// EventLogTail returns the most recent n entries of agentID's event log,
// oldest first within that tail.
func (r *Runtime) EventLogTail(ctx context.Context, agentID string, n int) ([]models.EventLogEntry, error) {
	entries, err := r.eventTable().ScanPrefix(ctx, agentID+"/", 0)
	if err != nil {
		return nil, fmt.Errorf("background: event log tail %s: %w", agentID, err)
	}
	log := make([]models.EventLogEntry, 0, len(entries))
	for _, e := range entries {
		log = append(log, e.Value)
	}
	return models.EventLogTail(log, n), nil
}
