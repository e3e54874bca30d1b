package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentcore/nexuscore/pkg/models"
)

// fakeOutbound is a minimal Adapter+OutboundAdapter test double.
type fakeOutbound struct {
	kind models.ChannelType
	err  error

	mu   sync.Mutex
	sent []*models.Message
}

func (f *fakeOutbound) Type() models.ChannelType { return f.kind }

func (f *fakeOutbound) Send(ctx context.Context, msg *models.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeOutbound) last() *models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

// inboundOnly implements Adapter but no OutboundAdapter, used to exercise
// the registered-but-not-configured path.
type inboundOnly struct {
	kind models.ChannelType
}

func (i *inboundOnly) Type() models.ChannelType { return i.kind }

func newTestRouter() (*Router, *fakeOutbound) {
	reg := NewRegistry()
	adapter := &fakeOutbound{kind: models.ChannelDiscord}
	reg.Register(adapter)
	r := NewRouter(reg)
	return r, adapter
}

func TestSendTo_UnregisteredChannelFails(t *testing.T) {
	r, _ := newTestRouter()
	err := r.SendTo(context.Background(), models.ChannelSlack, &models.Message{})
	if !errors.Is(err, ErrChannelNotRegistered) {
		t.Fatalf("expected ErrChannelNotRegistered, got %v", err)
	}
}

func TestSendTo_RegisteredWithoutOutboundFails(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&inboundOnly{kind: models.ChannelTelegram})
	r := NewRouter(reg)

	err := r.SendTo(context.Background(), models.ChannelTelegram, &models.Message{})
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
}

func TestSendTo_Success(t *testing.T) {
	r, adapter := newTestRouter()
	msg := &models.Message{Content: "hi"}
	if err := r.SendTo(context.Background(), models.ChannelDiscord, msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := adapter.last(); got == nil || got.Content != "hi" {
		t.Fatalf("expected message to be delivered, got %+v", got)
	}
}

func TestReply_UnknownConversationFails(t *testing.T) {
	r, _ := newTestRouter()
	err := r.Reply(context.Background(), "no-such-conversation", "hello")
	if !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("expected ErrUnknownConversation, got %v", err)
	}
}

func TestReply_Success(t *testing.T) {
	r, adapter := newTestRouter()
	inbound := &models.Message{Channel: models.ChannelDiscord, ChannelID: "chat-1"}
	conv := r.RecordConversation(inbound, models.ConversationKindMain, "")

	if err := r.Reply(context.Background(), conv.ConversationID, "pong"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := adapter.last()
	if got == nil || got.Content != "pong" {
		t.Fatalf("expected reply to be delivered, got %+v", got)
	}
	if got.ChannelID != "chat-1" {
		t.Fatalf("expected raw channel id chat-1, got %q", got.ChannelID)
	}
	if got.DisableMarkdown {
		t.Fatalf("reply should not disable markdown")
	}
}

func TestBroadcast_SkipsChannelsWithNoDefaultConversation(t *testing.T) {
	reg := NewRegistry()
	withDefault := &fakeOutbound{kind: models.ChannelDiscord}
	withoutDefault := &fakeOutbound{kind: models.ChannelTelegram}
	reg.Register(withDefault)
	reg.Register(withoutDefault)

	r := NewRouter(reg)
	r.SetDefaultConversation(models.ChannelDiscord, "chat-1")

	errs := r.Broadcast(context.Background(), "announcement", BroadcastInfo)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if withDefault.last() == nil {
		t.Fatalf("expected discord adapter to receive broadcast")
	}
	if withoutDefault.last() != nil {
		t.Fatalf("telegram has no default conversation and must never receive a broadcast via scanning fallback")
	}
}

func TestBroadcast_RawLevelDisablesMarkdown(t *testing.T) {
	r, adapter := newTestRouter()
	r.SetDefaultConversation(models.ChannelDiscord, "chat-1")

	if errs := r.Broadcast(context.Background(), "<raw agent output>", BroadcastRaw); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	got := adapter.last()
	if got == nil || !got.DisableMarkdown {
		t.Fatalf("expected raw broadcast to disable markdown, got %+v", got)
	}
}

func TestBroadcast_InfoLevelKeepsMarkdownEnabled(t *testing.T) {
	r, adapter := newTestRouter()
	r.SetDefaultConversation(models.ChannelDiscord, "chat-1")

	if errs := r.Broadcast(context.Background(), "status update", BroadcastInfo); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := adapter.last(); got == nil || got.DisableMarkdown {
		t.Fatalf("info broadcast should not disable markdown, got %+v", got)
	}
}

func TestBroadcast_CollectsPerChannelErrors(t *testing.T) {
	reg := NewRegistry()
	failing := &fakeOutbound{kind: models.ChannelDiscord, err: errors.New("boom")}
	reg.Register(failing)
	r := NewRouter(reg)
	r.SetDefaultConversation(models.ChannelDiscord, "chat-1")

	errs := r.Broadcast(context.Background(), "hi", BroadcastInfo)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
}

func TestRecordConversation_MainAndThreadAreIndependent(t *testing.T) {
	r, _ := newTestRouter()
	inbound := &models.Message{Channel: models.ChannelDiscord, ChannelID: "chat-1"}

	main := r.RecordConversation(inbound, models.ConversationKindMain, "task-A")
	if main.BoundTaskID != "task-A" {
		t.Fatalf("expected main conversation bound to task-A, got %q", main.BoundTaskID)
	}

	thread := r.RecordConversation(inbound, models.ConversationKindThread, "")
	if thread.BoundTaskID != "" {
		t.Fatalf("thread conversation must not inherit the main conversation's task binding, got %q", thread.BoundTaskID)
	}
	if thread.ConversationID == main.ConversationID {
		t.Fatalf("main and thread conversations sharing a channel id must not collapse to the same key")
	}

	// Re-fetching main must still show its own binding, unaffected by the thread record.
	got, ok := r.Conversation(main.ConversationID)
	if !ok || got.BoundTaskID != "task-A" {
		t.Fatalf("expected main conversation binding to survive, got %+v ok=%v", got, ok)
	}
}

func TestRecordConversation_UpdatesExistingBinding(t *testing.T) {
	r, _ := newTestRouter()
	inbound := &models.Message{Channel: models.ChannelDiscord, ChannelID: "chat-1"}

	first := r.RecordConversation(inbound, models.ConversationKindMain, "task-A")
	second := r.RecordConversation(inbound, models.ConversationKindMain, "task-B")

	if first.ConversationID != second.ConversationID {
		t.Fatalf("expected the same conversation entry to be reused")
	}
	got, ok := r.Conversation(second.ConversationID)
	if !ok || got.BoundTaskID != "task-B" {
		t.Fatalf("expected binding to update to task-B, got %+v", got)
	}
}

func TestRecordConversation_EmptyTaskIDDoesNotClearExistingBinding(t *testing.T) {
	r, _ := newTestRouter()
	inbound := &models.Message{Channel: models.ChannelDiscord, ChannelID: "chat-1"}

	r.RecordConversation(inbound, models.ConversationKindMain, "task-A")
	updated := r.RecordConversation(inbound, models.ConversationKindMain, "")

	if updated.BoundTaskID != "task-A" {
		t.Fatalf("expected existing binding to be preserved when taskID is empty, got %q", updated.BoundTaskID)
	}
}

func TestConversation_UnknownReturnsFalse(t *testing.T) {
	r, _ := newTestRouter()
	_, ok := r.Conversation("missing")
	if ok {
		t.Fatalf("expected ok=false for unknown conversation")
	}
}

func TestCleanupStaleConversations_RemovesOnlyOldEntries(t *testing.T) {
	now := time.Now()
	var clock time.Time = now
	reg := NewRegistry()
	r := NewRouter(reg)
	r.now = func() time.Time { return clock }

	stale := &models.Message{Channel: models.ChannelDiscord, ChannelID: "stale-chat"}
	r.RecordConversation(stale, models.ConversationKindMain, "")

	clock = now.Add(2 * time.Hour)
	fresh := &models.Message{Channel: models.ChannelDiscord, ChannelID: "fresh-chat"}
	r.RecordConversation(fresh, models.ConversationKindMain, "")

	removed := r.CleanupStaleConversations(time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 stale conversation removed, got %d", removed)
	}

	if _, ok := r.Conversation(conversationKey("stale-chat", models.ConversationKindMain)); ok {
		t.Fatalf("expected stale conversation to be gone")
	}
	if _, ok := r.Conversation(conversationKey("fresh-chat", models.ConversationKindMain)); !ok {
		t.Fatalf("expected fresh conversation to remain")
	}
}

func TestRawChannelID_StripsKindPrefix(t *testing.T) {
	key := conversationKey("chat-42", models.ConversationKindThread)
	if got := rawChannelID(key); got != "chat-42" {
		t.Fatalf("expected chat-42, got %q", got)
	}
}

func TestRawChannelID_NoPrefixReturnsInput(t *testing.T) {
	if got := rawChannelID("plain-id"); got != "plain-id" {
		t.Fatalf("expected plain-id unchanged, got %q", got)
	}
}
