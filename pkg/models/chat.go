package models

import "time"

// ChatMessage is one entry in a ChatSession's ordered message list.
type ChatMessage struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	ExecMeta  map[string]any `json:"exec_meta,omitempty"`
}

// ChatSessionMetadata carries derived bookkeeping about a ChatSession.
// MessageCount must equal len(Messages) after every mutation.
type ChatSessionMetadata struct {
	MessageCount int            `json:"message_count"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// ChatSession is an ordered message list for a single conversation.
type ChatSession struct {
	ID       string               `json:"id"`
	Messages []ChatMessage        `json:"messages"`
	Metadata ChatSessionMetadata  `json:"metadata"`
}

// AppendMessage appends a message and keeps Metadata.MessageCount in sync,
// preserving the "metadata.message_count == len(messages)" invariant.
func (c *ChatSession) AppendMessage(m ChatMessage) {
	c.Messages = append(c.Messages, m)
	c.Metadata.MessageCount = len(c.Messages)
}

// Valid reports whether the message-count invariant currently holds.
func (c ChatSession) Valid() bool {
	return c.Metadata.MessageCount == len(c.Messages)
}

// ConversationKind distinguishes a channel's main conversation from a
// thread nested within it. Task bindings never inherit across kinds.
type ConversationKind string

const (
	ConversationKindMain   ConversationKind = "main"
	ConversationKindThread ConversationKind = "thread"
)

// ConversationContext tracks per-conversation routing state: which
// channel and user own it, and which task (if any) it is currently bound
// to. A thread's task binding is independent of its parent chat's
// binding, and vice versa — they are different map entries even when the
// thread lives inside the same channel/chat.
type ConversationContext struct {
	ConversationID string           `json:"conversation_id"`
	Kind           ConversationKind `json:"kind"`
	Channel        ChannelType      `json:"channel"`
	UserID         string           `json:"user_id"`
	BoundTaskID    string           `json:"bound_task_id,omitempty"`
	LastActivity   time.Time        `json:"last_activity"`
}

// ConversationStore maps conversation id to its context. Kept as a plain
// type alias rather than a struct so callers can choose their own
// concurrency wrapper around it.
type ConversationStore map[string]*ConversationContext
