// Package conversation owns a widget's message list and its exchange with
// the remote chat API, including the paced typing indicator.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/roofchat/internal/chatapi"
	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/domain"
)

const (
	// WelcomeText seeds every new conversation.
	WelcomeText = "Hi! My name is Esther. How can I help you today? 🙂"
	// FallbackText replaces the reply when the request fails.
	FallbackText = "I'm sorry, I'm having trouble connecting right now. Please try again."
	// EmptyReplyText replaces a reply that carried no content.
	EmptyReplyText = "I'm sorry, I couldn't process that request."

	// DefaultTypingDelay is the pause before the typing indicator appears.
	DefaultTypingDelay = 400 * time.Millisecond
	// DefaultReplyDelay is how long the indicator shows before the reply.
	DefaultReplyDelay = 2 * time.Second
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("conversation closed")

// Replier sends one user message to the chat backend.
type Replier interface {
	Send(ctx context.Context, text, chatID string) (chatapi.Reply, error)
}

// Config tunes pacing and wires observers. Observers run without the
// manager's lock held, one at a time, in message order.
type Config struct {
	TypingDelay time.Duration
	ReplyDelay  time.Duration
	// Welcome overrides WelcomeText when non-empty.
	Welcome   string
	OnMessage func(domain.ChatMessage)
	OnTyping  func(bool)
	OnChatID  func(string)
	Logger    *slog.Logger
}

// pendingReply is a bot reply waiting on its presentation timers.
type pendingReply struct {
	text   string
	timer  clock.Token
	typing bool
}

// Manager holds one conversation session.
type Manager struct {
	mu      sync.Mutex
	clock   clock.Scheduler
	api     Replier
	cfg     Config
	logger  *slog.Logger
	ids     domain.MessageIDs
	msgs    []domain.ChatMessage
	chatID  string
	input   string
	typing  int
	pending map[uint64]*pendingReply
	nextID  uint64
	closed  bool

	// emitMu guards what observers have seen so far.
	emitMu      sync.Mutex
	published   int
	shownTyping bool
}

// New creates a conversation seeded with the welcome message.
func New(sched clock.Scheduler, api Replier, cfg Config) *Manager {
	if cfg.TypingDelay <= 0 {
		cfg.TypingDelay = DefaultTypingDelay
	}
	if cfg.ReplyDelay <= 0 {
		cfg.ReplyDelay = DefaultReplyDelay
	}
	if cfg.Welcome == "" {
		cfg.Welcome = WelcomeText
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		clock:   sched,
		api:     api,
		cfg:     cfg,
		logger:  logger,
		pending: make(map[uint64]*pendingReply),
	}
	m.msgs = append(m.msgs, m.newMessageLocked(cfg.Welcome, domain.SenderBot))
	m.published = len(m.msgs)
	return m
}

// Messages returns a copy of the conversation in insertion order.
func (m *Manager) Messages() []domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ChatMessage, len(m.msgs))
	copy(out, m.msgs)
	return out
}

// ChatID returns the server-assigned conversation id, or "" before the
// first successful exchange.
func (m *Manager) ChatID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatID
}

// Typing reports whether a reply is pending presentation.
func (m *Manager) Typing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing > 0
}

// Input returns the draft in the input box.
func (m *Manager) Input() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// SetInput replaces the draft in the input box.
func (m *Manager) SetInput(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.input = text
}

// SendInput sends the current draft.
func (m *Manager) SendInput(ctx context.Context) error {
	return m.Send(ctx, m.Input())
}

// Send appends text as a user message, asks the backend for a reply, and
// schedules its paced presentation. Whitespace-only text is ignored. Send
// blocks for the duration of the request; failures become a fallback reply
// and are never returned.
func (m *Manager) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.msgs = append(m.msgs, m.newMessageLocked(text, domain.SenderUser))
	m.input = ""
	chatID := m.chatID
	m.mu.Unlock()

	m.flush()

	reply, err := m.api.Send(ctx, text, chatID)
	botText := reply.Content
	switch {
	case err != nil:
		m.logger.Error("Chat request failed", "chat_id", chatID, "error", err)
		botText = FallbackText
	case botText == "":
		botText = EmptyReplyText
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	var assigned string
	if err == nil && m.chatID == "" && reply.ID != "" {
		m.chatID = reply.ID
		assigned = reply.ID
	}
	m.schedulePresentationLocked(botText)
	m.mu.Unlock()

	if assigned != "" && m.cfg.OnChatID != nil {
		m.cfg.OnChatID(assigned)
	}
	return nil
}

// Close cancels every pending presentation and clears the typing state.
// Replies still in flight are discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, p := range m.pending {
		m.clock.Cancel(p.timer)
		delete(m.pending, id)
	}
	m.typing = 0
}

// Pending returns the number of replies awaiting presentation.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// schedulePresentationLocked arms the first of two chained timers: a pause
// before the typing indicator, then the typing period itself.
func (m *Manager) schedulePresentationLocked(text string) {
	m.nextID++
	id := m.nextID
	p := &pendingReply{text: text}
	m.pending[id] = p
	p.timer = m.clock.Schedule(m.cfg.TypingDelay, func() { m.startTyping(id) })
}

func (m *Manager) startTyping(id uint64) {
	m.mu.Lock()
	p, ok := m.pending[id]
	if !ok || m.closed {
		m.mu.Unlock()
		return
	}
	p.typing = true
	m.typing++
	p.timer = m.clock.Schedule(m.cfg.ReplyDelay, func() { m.deliver(id) })
	m.mu.Unlock()

	m.flush()
}

func (m *Manager) deliver(id uint64) {
	m.mu.Lock()
	p, ok := m.pending[id]
	if !ok || m.closed {
		m.mu.Unlock()
		return
	}
	delete(m.pending, id)
	if p.typing {
		m.typing--
	}
	m.msgs = append(m.msgs, m.newMessageLocked(p.text, domain.SenderBot))
	m.mu.Unlock()

	m.flush()
}

// flush hands observers every message they have not seen yet, then the
// typing state as it is after those messages. Each state change is followed
// by a flush, so the last one always leaves observers on the current state.
func (m *Manager) flush() {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	fresh := append([]domain.ChatMessage(nil), m.msgs[m.published:]...)
	m.published = len(m.msgs)
	m.mu.Unlock()

	for _, msg := range fresh {
		m.emitMessage(msg)
	}

	on := m.Typing()
	if on == m.shownTyping {
		return
	}
	m.shownTyping = on
	m.emitTyping(on)
}

func (m *Manager) newMessageLocked(text string, sender domain.Sender) domain.ChatMessage {
	now := m.clock.Now()
	return domain.ChatMessage{
		ID:        m.ids.Next(now),
		Text:      text,
		Sender:    sender,
		Timestamp: now,
	}
}

func (m *Manager) emitMessage(msg domain.ChatMessage) {
	if m.cfg.OnMessage != nil {
		m.cfg.OnMessage(msg)
	}
}

func (m *Manager) emitTyping(on bool) {
	if m.cfg.OnTyping != nil {
		m.cfg.OnTyping(on)
	}
}
