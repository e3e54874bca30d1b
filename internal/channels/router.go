package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/nexuscore/pkg/models"
)

// BroadcastLevel classifies a broadcast message for channels that apply
// different formatting/urgency per level (info, warning, error, raw
// agent output).
type BroadcastLevel string

const (
	BroadcastInfo  BroadcastLevel = "info"
	BroadcastWarn  BroadcastLevel = "warn"
	BroadcastError BroadcastLevel = "error"
	BroadcastRaw   BroadcastLevel = "raw"
)

// ErrChannelNotRegistered is returned when an operation targets a
// channel kind with no registered adapter.
var ErrChannelNotRegistered = errors.New("channels: not registered")

// ErrChannelNotConfigured is returned by SendTo when the channel is
// registered but has no default conversation/outbound target configured.
var ErrChannelNotConfigured = errors.New("channels: not configured")

// ErrUnknownConversation is returned by Reply when no context is
// recorded for the given conversation id.
var ErrUnknownConversation = errors.New("channels: unknown conversation")

// Router maintains a map from channel kind to a registered adapter and a
// map of active conversation contexts (C11). It never falls back to
// scanning recorded conversations to find a destination for a channel
// that has no default configured — doing so for Telegram in particular
// would risk leaking a broadcast into the wrong chat.
type Router struct {
	registry *Registry

	mu                 sync.RWMutex
	defaultConversation map[models.ChannelType]string
	conversations       models.ConversationStore

	now func() time.Time
}

// NewRouter builds a Router over registry.
func NewRouter(registry *Registry) *Router {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Router{
		registry:            registry,
		defaultConversation: make(map[models.ChannelType]string),
		conversations:       make(models.ConversationStore),
		now:                 time.Now,
	}
}

// SetDefaultConversation configures the conversation id broadcast uses
// as the destination for kind.
func (r *Router) SetDefaultConversation(kind models.ChannelType, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultConversation[kind] = conversationID
}

// SendTo sends msg via the adapter registered for kind. Fails if kind is
// not registered, or not configured (no outbound capability).
func (r *Router) SendTo(ctx context.Context, kind models.ChannelType, msg *models.Message) error {
	adapter, ok := r.registry.GetOutbound(kind)
	if !ok {
		if _, registered := r.registry.Get(kind); registered {
			return fmt.Errorf("%w: %s", ErrChannelNotConfigured, kind)
		}
		return fmt.Errorf("%w: %s", ErrChannelNotRegistered, kind)
	}
	return adapter.Send(ctx, msg)
}

// Reply looks up the channel bound to conversationID and sends text via
// it. Fails on an unknown conversation.
func (r *Router) Reply(ctx context.Context, conversationID, text string) error {
	r.mu.RLock()
	conv, ok := r.conversations[conversationID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}

	msg := &models.Message{
		Channel:   conv.Channel,
		ChannelID: rawChannelID(conversationID),
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: r.now(),
	}
	return r.SendTo(ctx, conv.Channel, msg)
}

// Broadcast sends text at the given level to every configured channel's
// default conversation. A channel with no default conversation
// configured is skipped — never substituted with a scan over recorded
// conversations, which could send to the wrong chat. Raw agent output
// (level == BroadcastRaw) disables the channel's markdown parse mode to
// avoid entity-parsing failures on unescaped content.
func (r *Router) Broadcast(ctx context.Context, text string, level BroadcastLevel) []error {
	r.mu.RLock()
	targets := make(map[models.ChannelType]string, len(r.defaultConversation))
	for kind, conv := range r.defaultConversation {
		if conv != "" {
			targets[kind] = conv
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, adapter := range r.registry.All() {
		kind := adapter.Type()
		conv, ok := targets[kind]
		if !ok {
			continue
		}
		msg := &models.Message{
			Channel:         kind,
			ChannelID:       conv,
			Direction:       models.DirectionOutbound,
			Role:            models.RoleAssistant,
			Content:         text,
			CreatedAt:       r.now(),
			DisableMarkdown: level == BroadcastRaw,
			Metadata:        map[string]any{"level": string(level)},
		}
		if err := r.SendTo(ctx, kind, msg); err != nil {
			errs = append(errs, fmt.Errorf("broadcast to %s: %w", kind, err))
		}
	}
	return errs
}

// RecordConversation creates or updates the conversation context for an
// inbound message, binding it to taskID. Each (conversation id, kind)
// pair is tracked as its own entry: a thread-kind conversation never
// inherits a task binding from its parent main conversation (and vice
// versa), even when they share the same underlying channel chat id.
//
// The returned context's ConversationID is the key Reply, Conversation,
// and CleanupStaleConversations expect — callers that need to reply
// later should hold onto it rather than re-deriving it from the raw
// channel id.
func (r *Router) RecordConversation(inbound *models.Message, kind models.ConversationKind, taskID string) *models.ConversationContext {
	key := conversationKey(inbound.ChannelID, kind)
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[key]
	if !exists {
		conv = &models.ConversationContext{
			ConversationID: key,
			Kind:           kind,
			Channel:        inbound.Channel,
		}
		r.conversations[key] = conv
	}
	conv.LastActivity = now
	if taskID != "" {
		conv.BoundTaskID = taskID
	}
	return conv
}

func conversationKey(conversationID string, kind models.ConversationKind) string {
	return string(kind) + ":" + conversationID
}

// rawChannelID strips the kind prefix added by conversationKey, recovering
// the platform-specific id an outbound adapter expects.
func rawChannelID(key string) string {
	if idx := strings.IndexByte(key, ':'); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

// Conversation returns the recorded context for id, if any.
func (r *Router) Conversation(id string) (models.ConversationContext, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.conversations[id]
	if !ok {
		return models.ConversationContext{}, false
	}
	return *conv, true
}

// CleanupStaleConversations deletes contexts whose LastActivity is older
// than maxAge and returns the number removed.
func (r *Router) CleanupStaleConversations(maxAge time.Duration) int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, conv := range r.conversations {
		if now.Sub(conv.LastActivity) > maxAge {
			delete(r.conversations, id)
			removed++
		}
	}
	return removed
}
