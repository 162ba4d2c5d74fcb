// Package popup decides when the unsolicited chat invitation bubble shows.
package popup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/store"
)

// InitializedKey marks, in session storage, that the first-visit delay was paid.
const InitializedKey = "chatPopupInitialized"

// DefaultDelay is how long a fresh session waits before showing the bubble.
const DefaultDelay = 3 * time.Second

const persistTimeout = 5 * time.Second

// State is the bubble's visibility state.
type State int

const (
	// Hidden shows nothing and has no timer armed.
	Hidden State = iota
	// PendingFirstShow waits for the first-visit delay.
	PendingFirstShow
	// Visible shows the bubble.
	Visible
	// Dismissed hides the bubble until the chat is next opened.
	Dismissed
)

func (s State) String() string {
	switch s {
	case PendingFirstShow:
		return "pending"
	case Visible:
		return "visible"
	case Dismissed:
		return "dismissed"
	default:
		return "hidden"
	}
}

// Config wires a Controller to its host.
type Config struct {
	// Delay overrides DefaultDelay when positive.
	Delay time.Duration
	// OnOpenChat is called when the visitor clicks the bubble.
	OnOpenChat func()
	// OnChange is called after every state change.
	OnChange func(State)
	Logger   *slog.Logger
}

// Controller is the popup state machine for one mounted widget.
// Callbacks run without the controller's lock held, one at a time, and
// always carry the state current at the moment they run.
type Controller struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	shown     State
	clock     clock.Scheduler
	session   store.Store
	delay     time.Duration
	cfg       Config
	logger    *slog.Logger
	state     State
	chatOpen  bool
	dismissed bool
	mounted   bool
	timer     clock.Token
	timerGen  uint64
}

// New creates an unmounted controller in the Hidden state.
func New(sched clock.Scheduler, session store.Store, cfg Config) *Controller {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		clock:   sched,
		session: session,
		delay:   delay,
		cfg:     cfg,
		logger:  logger,
		state:   Hidden,
		shown:   Hidden,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Visible reports whether the bubble should be drawn.
func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Visible
}

// Dismissed reports whether the visitor closed the bubble this session.
func (c *Controller) Dismissed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dismissed
}

// Mount starts the controller with the host's current chat-open signal.
func (c *Controller) Mount(ctx context.Context, chatOpen bool) {
	initialized := c.initialized(ctx)

	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.chatOpen = chatOpen
	c.evaluateLocked(initialized)
	c.mu.Unlock()

	c.publish()
}

// Unmount cancels any pending timer. Later calls are ignored.
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mounted = false
	c.cancelTimerLocked()
}

// SetChatOpen applies a change of the host's chat-open signal. Opening the
// chat hides the bubble and clears a previous dismissal.
func (c *Controller) SetChatOpen(ctx context.Context, open bool) {
	var initialized bool
	if !open {
		initialized = c.initialized(ctx)
	}

	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.chatOpen = open
	c.evaluateLocked(initialized)
	c.mu.Unlock()

	c.publish()
}

// Dismiss closes a visible bubble for the rest of the session, or until the
// chat is opened. It is ignored in any other state.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if !c.mounted || c.state != Visible {
		c.mu.Unlock()
		return
	}
	c.dismissed = true
	c.cancelTimerLocked()
	c.state = Dismissed
	c.mu.Unlock()

	c.publish()
}

// Click hides a visible bubble and asks the host to open the chat.
func (c *Controller) Click() {
	c.mu.Lock()
	if !c.mounted || c.state != Visible {
		c.mu.Unlock()
		return
	}
	c.state = Hidden
	c.mu.Unlock()

	c.publish()
	if c.cfg.OnOpenChat != nil {
		c.cfg.OnOpenChat()
	}
}

// evaluateLocked re-derives the state from the chat signal, the dismissal
// flag and the session flag. Callers hold c.mu.
func (c *Controller) evaluateLocked(initialized bool) {
	c.cancelTimerLocked()

	switch {
	case c.chatOpen:
		c.dismissed = false
		c.state = Hidden
	case c.dismissed:
		c.state = Dismissed
	case initialized:
		c.state = Visible
	default:
		c.armTimerLocked()
		c.state = PendingFirstShow
	}
}

// armTimerLocked schedules the first-show delay. The generation guards
// against a callback that was already running when the timer was cancelled.
func (c *Controller) armTimerLocked() {
	c.timerGen++
	gen := c.timerGen
	c.timer = c.clock.Schedule(c.delay, func() { c.onDelayElapsed(gen) })
}

func (c *Controller) cancelTimerLocked() {
	c.timerGen++
	if c.timer != 0 {
		c.clock.Cancel(c.timer)
		c.timer = 0
	}
}

// onDelayElapsed persists the session flag first and only then shows the
// bubble, so a visible bubble always has its flag stored. Any transition
// while the write is in flight bumps the generation and wins.
func (c *Controller) onDelayElapsed(gen uint64) {
	if !c.current(gen) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.session.Set(ctx, InitializedKey, "1"); err != nil {
		c.logger.Warn("Failed to persist popup initialization", "error", err)
	}

	c.mu.Lock()
	if !c.mounted || gen != c.timerGen || c.state != PendingFirstShow {
		c.mu.Unlock()
		return
	}
	c.timer = 0
	c.state = Visible
	c.mu.Unlock()

	c.publish()
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted && gen == c.timerGen && c.state == PendingFirstShow
}

// publish reports the state as it is now, skipping it when the observer
// already saw it. Concurrent transitions may coalesce but the last call
// always leaves the observer on the controller's current state.
func (c *Controller) publish() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	s := c.State()
	if s == c.shown {
		return
	}
	c.shown = s
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(s)
	}
}

func (c *Controller) initialized(ctx context.Context) bool {
	v, ok, err := c.session.Get(ctx, InitializedKey)
	if err != nil {
		c.logger.Warn("Failed to read popup initialization flag", "error", err)
		return false
	}
	return ok && v == "1"
}
