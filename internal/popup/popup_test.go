package popup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	clock   *clock.Virtual
	session store.Store
	ctrl    *Controller
	changes []State
	opened  int
}

func newHarness(t *testing.T, session store.Store) *harness {
	t.Helper()
	if session == nil {
		session = store.NewMemory().Scope(store.SessionScope("visitor", "tab"))
	}
	h := &harness{
		clock:   clock.NewVirtual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		session: session,
	}
	h.ctrl = New(h.clock, session, Config{
		OnOpenChat: func() { h.opened++ },
		OnChange:   func(s State) { h.changes = append(h.changes, s) },
	})
	return h
}

func TestFreshSessionShowsAfterDelay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	h.ctrl.Mount(ctx, false)
	assert.False(t, h.ctrl.Visible())
	assert.Equal(t, PendingFirstShow, h.ctrl.State())

	h.clock.Advance(2999 * time.Millisecond)
	assert.False(t, h.ctrl.Visible())

	h.clock.Advance(time.Millisecond)
	assert.True(t, h.ctrl.Visible())
	assert.Equal(t, []State{PendingFirstShow, Visible}, h.changes)

	v, ok, err := h.session.Get(ctx, InitializedKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestInitializedSessionShowsImmediately(t *testing.T) {
	ctx := context.Background()
	session := store.NewMemory().Scope("s")
	require.NoError(t, session.Set(ctx, InitializedKey, "1"))
	h := newHarness(t, session)

	h.ctrl.Mount(ctx, false)
	assert.True(t, h.ctrl.Visible())
	assert.Zero(t, h.clock.Pending())
}

func TestRemountAfterDelayPaidSkipsDelay(t *testing.T) {
	ctx := context.Background()
	session := store.NewMemory().Scope("s")

	first := newHarness(t, session)
	first.ctrl.Mount(ctx, false)
	first.clock.Advance(DefaultDelay)
	require.True(t, first.ctrl.Visible())
	first.ctrl.Unmount()

	second := newHarness(t, session)
	second.ctrl.Mount(ctx, false)
	assert.True(t, second.ctrl.Visible())
}

func TestMountWithChatOpenStaysHidden(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Mount(context.Background(), true)

	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Zero(t, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.False(t, h.ctrl.Visible())
}

func TestOpeningChatCancelsPendingTimer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.ctrl.Mount(ctx, false)
	h.clock.Advance(time.Second)

	h.ctrl.SetChatOpen(ctx, true)
	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Minute)
	assert.False(t, h.ctrl.Visible())

	_, ok, _ := h.session.Get(ctx, InitializedKey)
	assert.False(t, ok, "delay was interrupted, so it was not paid")
}

func TestClosingChatBeforeDelayPaidRestartsDelay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.ctrl.Mount(ctx, false)
	h.ctrl.SetChatOpen(ctx, true)
	h.ctrl.SetChatOpen(ctx, false)

	assert.Equal(t, PendingFirstShow, h.ctrl.State())
	h.clock.Advance(DefaultDelay)
	assert.True(t, h.ctrl.Visible())
}

func TestDismissIsSticky(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.ctrl.Mount(ctx, false)
	h.clock.Advance(DefaultDelay)
	require.True(t, h.ctrl.Visible())

	h.ctrl.Dismiss()
	assert.Equal(t, Dismissed, h.ctrl.State())
	assert.True(t, h.ctrl.Dismissed())
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Hour)
	assert.Equal(t, Dismissed, h.ctrl.State())

	// A close signal without an intervening open keeps it dismissed.
	h.ctrl.SetChatOpen(ctx, false)
	assert.Equal(t, Dismissed, h.ctrl.State())
	assert.Zero(t, h.clock.Pending())
}

func TestChatOpenResetsDismissal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.ctrl.Mount(ctx, false)
	h.clock.Advance(DefaultDelay)
	h.ctrl.Dismiss()

	h.ctrl.SetChatOpen(ctx, true)
	assert.Equal(t, Hidden, h.ctrl.State())
	assert.False(t, h.ctrl.Dismissed())

	h.ctrl.SetChatOpen(ctx, false)
	assert.True(t, h.ctrl.Visible(), "delay already paid, bubble returns immediately")
}

func TestDismissIgnoredUnlessVisible(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Mount(context.Background(), false)

	h.ctrl.Dismiss()
	assert.Equal(t, PendingFirstShow, h.ctrl.State())
	assert.False(t, h.ctrl.Dismissed())
}

func TestClickOpensChat(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Mount(context.Background(), false)

	h.ctrl.Click()
	assert.Zero(t, h.opened, "hidden bubble cannot be clicked")

	h.clock.Advance(DefaultDelay)
	h.ctrl.Click()
	assert.Equal(t, 1, h.opened)
	assert.Equal(t, Hidden, h.ctrl.State())
}

func TestUnmountCancelsTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.Mount(context.Background(), false)
	h.ctrl.Unmount()

	assert.Zero(t, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.False(t, h.ctrl.Visible())

	h.ctrl.SetChatOpen(context.Background(), false)
	assert.Zero(t, h.clock.Pending(), "events after unmount are ignored")
}

func TestStaleCallbackIgnored(t *testing.T) {
	v := clock.NewVirtual(time.Now())
	ctrl := New(v, store.NewMemory().Scope("s"), Config{})
	ctrl.Mount(context.Background(), false)

	ctrl.mu.Lock()
	gen := ctrl.timerGen
	ctrl.cancelTimerLocked()
	ctrl.mu.Unlock()

	ctrl.onDelayElapsed(gen)
	assert.Equal(t, PendingFirstShow, ctrl.State())
}

// gatedStore blocks writes until released so a transition can land while
// the session flag is being stored.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Set(ctx context.Context, key, value string) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.Set(ctx, key, value)
}

func TestChatOpenDuringFlagWriteWins(t *testing.T) {
	ctx := context.Background()
	gated := &gatedStore{
		Store:   store.NewMemory().Scope("s"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newHarness(t, gated)
	h.ctrl.Mount(ctx, false)

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		h.clock.Advance(DefaultDelay)
	}()

	<-gated.entered
	h.ctrl.SetChatOpen(ctx, true)
	close(gated.release)
	<-fired

	assert.Equal(t, Hidden, h.ctrl.State())
	assert.Equal(t, []State{PendingFirstShow, Hidden}, h.changes)
}

func TestPublishSkipsStaleState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.ctrl.Mount(ctx, false)
	h.clock.Advance(DefaultDelay)
	require.Equal(t, []State{PendingFirstShow, Visible}, h.changes)

	// A late publish from an earlier transition reports nothing new.
	h.ctrl.SetChatOpen(ctx, true)
	h.ctrl.publish()
	assert.Equal(t, []State{PendingFirstShow, Visible, Hidden}, h.changes)
}

func TestRealClockDoesNotLeak(t *testing.T) {
	r := clock.NewReal()
	ctrl := New(r, store.NewMemory().Scope("s"), Config{Delay: 10 * time.Millisecond})
	ctrl.Mount(context.Background(), false)

	require.Eventually(t, ctrl.Visible, time.Second, 5*time.Millisecond)
	ctrl.Unmount()
	assert.Zero(t, r.Pending())
}
