package widget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/roofchat/internal/chatapi"
	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/conversation"
	"github.com/ashureev/roofchat/internal/linkify"
	"github.com/ashureev/roofchat/internal/popup"
	"github.com/ashureev/roofchat/internal/store"
)

type stubReplier struct {
	mu    sync.Mutex
	calls int
	reply chatapi.Reply
}

func (s *stubReplier) Send(_ context.Context, _, _ string) (chatapi.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, nil
}

func (s *stubReplier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestSession(t *testing.T, api *stubReplier) (*Session, *clock.Virtual, *recorder) {
	t.Helper()
	clk := clock.NewVirtual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &recorder{}
	scope := store.NewMemory().Scope(store.SessionScope("visitor", "tab"))
	s := NewSession(clk, scope, api, rec.sink, Config{})
	t.Cleanup(s.Unmount)
	return s, clk, rec
}

func TestMountPublishesSnapshot(t *testing.T) {
	s, _, rec := newTestSession(t, &stubReplier{})
	s.Mount(context.Background(), false)

	snaps := rec.ofType(EventSnapshot)
	require.Len(t, snaps, 1)
	snap := snaps[0].Snapshot
	assert.False(t, snap.ChatOpen)
	assert.Equal(t, "pending", snap.Popup.State)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, linkify.KindText, snap.Messages[0].Segments[0].Kind)
}

func TestPopupClickOpensChat(t *testing.T) {
	s, clk, rec := newTestSession(t, &stubReplier{})
	ctx := context.Background()
	s.Mount(ctx, false)

	clk.Advance(popup.DefaultDelay)
	assert.True(t, s.Snapshot().Popup.Visible)

	require.NoError(t, s.Handle(ctx, Command{Type: CommandPopupClick}))
	assert.True(t, s.ChatOpen())
	assert.False(t, s.Snapshot().Popup.Visible)

	chats := rec.ofType(EventChat)
	require.Len(t, chats, 1)
	assert.True(t, *chats[0].ChatOpen)
}

func TestToggleResetsDismissal(t *testing.T) {
	s, clk, _ := newTestSession(t, &stubReplier{})
	ctx := context.Background()
	s.Mount(ctx, false)
	clk.Advance(popup.DefaultDelay)

	require.NoError(t, s.Handle(ctx, Command{Type: CommandDismiss}))
	assert.Equal(t, "dismissed", s.Snapshot().Popup.State)

	require.NoError(t, s.Handle(ctx, Command{Type: CommandToggle}))
	require.NoError(t, s.Handle(ctx, Command{Type: CommandToggle}))
	assert.False(t, s.ChatOpen())
	assert.True(t, s.Snapshot().Popup.Visible, "session already paid the delay")
}

func TestSendStreamsConversation(t *testing.T) {
	api := &stubReplier{reply: chatapi.Reply{ID: "chat-5", Content: "Call us at (555) 123-4567"}}
	s, clk, rec := newTestSession(t, api)
	ctx := context.Background()
	s.Mount(ctx, true)

	require.NoError(t, s.Handle(ctx, Command{Type: CommandInput, Text: "phone?"}))
	require.NoError(t, s.Handle(ctx, Command{Type: CommandSend}))
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)

	clk.Advance(conversation.DefaultTypingDelay + conversation.DefaultReplyDelay)

	msgs := rec.ofType(EventMessage)
	require.Len(t, msgs, 2)
	assert.Equal(t, "phone?", msgs[0].Message.Text)
	bot := msgs[1].Message
	assert.Equal(t, "Call us at (555) 123-4567", bot.Text)
	require.Len(t, bot.Segments, 2)
	assert.Equal(t, "tel:5551234567", bot.Segments[1].Href)

	typing := rec.ofType(EventTyping)
	require.Len(t, typing, 2)
	assert.True(t, *typing[0].Typing)
	assert.False(t, *typing[1].Typing)

	ids := rec.ofType(EventChatID)
	require.Len(t, ids, 1)
	assert.Equal(t, "chat-5", ids[0].ChatID)
	assert.Equal(t, 1, api.count())
}

func TestUnmountStopsEverything(t *testing.T) {
	api := &stubReplier{reply: chatapi.Reply{Content: "late"}}
	s, clk, rec := newTestSession(t, api)
	ctx := context.Background()
	s.Mount(ctx, false)

	require.NoError(t, s.Send("hello"))
	require.Eventually(t, func() bool { return clk.Pending() == 2 }, time.Second, time.Millisecond)

	s.Unmount()
	<-s.Done()
	assert.Zero(t, clk.Pending())
	assert.ErrorIs(t, s.Send("again"), conversation.ErrClosed)

	clk.Advance(10 * time.Second)
	assert.Len(t, rec.ofType(EventMessage), 1)
	assert.Len(t, rec.ofType(EventPopup), 1)
}

func TestHandleUnknownCommand(t *testing.T) {
	s, _, _ := newTestSession(t, &stubReplier{})
	err := s.Handle(context.Background(), Command{Type: "explode"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}
