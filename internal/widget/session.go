// Package widget runs one chat widget per browser tab: the popup bubble and
// the conversation share a chat-open signal and publish events to the tab's
// renderer.
package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/conversation"
	"github.com/ashureev/roofchat/internal/domain"
	"github.com/ashureev/roofchat/internal/popup"
	"github.com/ashureev/roofchat/internal/store"
)

// ErrUnknownCommand is returned by Handle for unrecognized command types.
var ErrUnknownCommand = errors.New("unknown command")

// Sink receives events. It may be called from timer and request goroutines.
type Sink func(Event)

// Config carries per-session pacing.
type Config struct {
	PopupDelay  time.Duration
	TypingDelay time.Duration
	ReplyDelay  time.Duration
	Logger      *slog.Logger
}

// Session is one mounted widget.
type Session struct {
	mu       sync.Mutex
	chatOpen bool
	closed   bool

	popup  *popup.Controller
	conv   *conversation.Manager
	sink   Sink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sends  sync.WaitGroup
	done   chan struct{}
}

// NewSession wires a popup controller and a conversation manager over the
// tab's session storage. Call Mount to start it.
func NewSession(sched clock.Scheduler, session store.Store, api conversation.Replier, sink Sink, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		sink:   sink,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.popup = popup.New(sched, session, popup.Config{
		Delay:      cfg.PopupDelay,
		OnOpenChat: func() { s.SetChatOpen(s.ctx, true) },
		OnChange:   func(st popup.State) { s.emit(Event{Type: EventPopup, Popup: ptr(popupView(st))}) },
		Logger:     logger,
	})
	s.conv = conversation.New(sched, api, conversation.Config{
		TypingDelay: cfg.TypingDelay,
		ReplyDelay:  cfg.ReplyDelay,
		OnMessage:   func(m domain.ChatMessage) { s.emit(Event{Type: EventMessage, Message: ptr(messageView(m))}) },
		OnTyping:    func(on bool) { s.emit(Event{Type: EventTyping, Typing: ptr(on)}) },
		OnChatID:    func(id string) { s.emit(Event{Type: EventChatID, ChatID: id}) },
		Logger:      logger,
	})
	return s
}

// Mount starts the popup scheduler and publishes a snapshot.
func (s *Session) Mount(ctx context.Context, chatOpen bool) {
	s.mu.Lock()
	s.chatOpen = chatOpen
	s.mu.Unlock()

	s.popup.Mount(ctx, chatOpen)
	snap := s.Snapshot()
	s.emit(Event{Type: EventSnapshot, Snapshot: &snap})
}

// Unmount cancels every timer and in-flight request and waits for pending
// sends to return. It is safe to call more than once.
func (s *Session) Unmount() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conv.Close()
	s.popup.Unmount()
	s.sends.Wait()
	close(s.done)
}

// Done is closed once the session is unmounted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ChatOpen reports the chat-open signal.
func (s *Session) ChatOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatOpen
}

// SetChatOpen changes the chat-open signal and lets the popup react to it.
func (s *Session) SetChatOpen(ctx context.Context, open bool) {
	s.mu.Lock()
	if s.closed || s.chatOpen == open {
		s.mu.Unlock()
		return
	}
	s.chatOpen = open
	s.mu.Unlock()

	s.emit(Event{Type: EventChat, ChatOpen: ptr(open)})
	s.popup.SetChatOpen(ctx, open)
}

// Toggle flips the chat-open signal.
func (s *Session) Toggle(ctx context.Context) {
	s.SetChatOpen(ctx, !s.ChatOpen())
}

// Dismiss closes the popup bubble.
func (s *Session) Dismiss() {
	s.popup.Dismiss()
}

// PopupClick handles a click on the popup bubble.
func (s *Session) PopupClick() {
	s.popup.Click()
}

// SetInput records the draft.
func (s *Session) SetInput(text string) {
	s.conv.SetInput(text)
}

// Send sends text, or the current draft when text is empty, without
// blocking the caller. The request is bound to the session's lifetime.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return conversation.ErrClosed
	}
	s.sends.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.sends.Done()
		var err error
		if text == "" {
			err = s.conv.SendInput(s.ctx)
		} else {
			err = s.conv.Send(s.ctx, text)
		}
		if err != nil && !errors.Is(err, conversation.ErrClosed) {
			s.logger.Warn("Widget send failed", "error", err)
		}
	}()
	return nil
}

// Snapshot returns the current widget state.
func (s *Session) Snapshot() Snapshot {
	msgs := s.conv.Messages()
	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = messageView(m)
	}
	return Snapshot{
		ChatOpen: s.ChatOpen(),
		Popup:    popupView(s.popup.State()),
		Messages: views,
		Typing:   s.conv.Typing(),
		ChatID:   s.conv.ChatID(),
		Input:    s.conv.Input(),
	}
}

// Handle dispatches one renderer command.
func (s *Session) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandOpen:
		s.SetChatOpen(ctx, true)
	case CommandClose:
		s.SetChatOpen(ctx, false)
	case CommandToggle:
		s.Toggle(ctx)
	case CommandDismiss:
		s.Dismiss()
	case CommandPopupClick:
		s.PopupClick()
	case CommandInput:
		s.SetInput(cmd.Text)
	case CommandSend:
		return s.Send(cmd.Text)
	case CommandPing:
		s.emit(Event{Type: EventPong})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

func (s *Session) emit(ev Event) {
	if s.sink != nil {
		s.sink(ev)
	}
}

func ptr[T any](v T) *T { return &v }
