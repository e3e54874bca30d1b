package background

import (
	"context"
	"fmt"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
	"github.com/google/uuid"
)

const tableInbox = "background_inbox"

func (r *Runtime) inboxTable() *store.Table[models.InboxMessage] {
	return store.NewTable[models.InboxMessage](r.st, tableInbox)
}

// nextSeq returns the next sequence number for agentID's per-agent
// append-only logs (inbox, events), starting at 1 and monotonically
// increasing for the lifetime of the Runtime.
func (r *Runtime) nextSeq(agentID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	counter, ok := r.seq[agentID]
	if !ok {
		counter = new(uint64)
		r.seq[agentID] = counter
	}
	*counter++
	return *counter
}

func seqKey(agentID string, seq uint64) string {
	return fmt.Sprintf("%s/%020d", agentID, seq)
}

// SendMessage appends a FIFO inbox entry for a background agent. Messages
// are persisted regardless of whether the agent is currently running.
func (r *Runtime) SendMessage(ctx context.Context, agentID string, source models.InboxSource, content string) (models.InboxMessage, error) {
	if _, err := r.Get(ctx, agentID); err != nil {
		return models.InboxMessage{}, err
	}
	msg := models.InboxMessage{
		ID:        uuid.NewString(),
		Source:    source,
		Content:   content,
		CreatedAt: r.now(),
	}
	key := seqKey(agentID, r.nextSeq(agentID))
	if err := r.inboxTable().Put(ctx, key, msg); err != nil {
		return models.InboxMessage{}, fmt.Errorf("background: send message %s: %w", agentID, err)
	}
	return msg, nil
}

// Inbox returns every message delivered to agentID, oldest first.
func (r *Runtime) Inbox(ctx context.Context, agentID string) ([]models.InboxMessage, error) {
	entries, err := r.inboxTable().ScanPrefix(ctx, agentID+"/", 0)
	if err != nil {
		return nil, fmt.Errorf("background: inbox %s: %w", agentID, err)
	}
	out := make([]models.InboxMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}
