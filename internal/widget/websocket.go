package widget

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/conversation"
	"github.com/ashureev/roofchat/internal/identity"
	"github.com/ashureev/roofchat/internal/store"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// Handler serves widget sessions over WebSocket.
type Handler struct {
	clock         clock.Scheduler
	backend       store.Backend
	api           conversation.Replier
	registry      *Registry
	cfg           Config
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler.
func NewHandler(sched clock.Scheduler, backend store.Backend, api conversation.Replier, registry *Registry, cfg Config, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		clock:         sched,
		backend:       backend,
		api:           api,
		registry:      registry,
		cfg:           cfg,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	slog.Info("Widget connection request", "visitor_id", visitorID, "tab_id", tabID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan Event, eventBuffer)
	sink := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	sess := NewSession(h.clock, h.backend.Scope(store.SessionScope(visitorID, tabID)), h.api, sink, h.cfg)
	h.registry.Register(visitorID, tabID, sess)
	defer h.registry.Unregister(visitorID, tabID, sess)

	var wg sync.WaitGroup
	wg.Add(2)

	// Output loop: session -> WebSocket.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, ws, events, visitorID)
	}()

	// A replacing connection unmounts this session.
	go func() {
		defer wg.Done()
		select {
		case <-sess.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	sess.Mount(ctx, r.URL.Query().Get("open") == "1")
	h.inputLoop(ctx, ws, sess, visitorID)

	cancel()
	sess.Unmount()
	wg.Wait()
	slog.Info("Widget session ended", "visitor_id", visitorID, "tab_id", tabID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) inputLoop(ctx context.Context, ws *websocket.Conn, sess *Session, visitorID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed", "visitor_id", visitorID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "visitor_id", visitorID)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			sess.emit(Event{Type: EventError, Error: "malformed command"})
			continue
		}
		if err := sess.Handle(ctx, cmd); err != nil {
			slog.Debug("Widget command rejected", "type", cmd.Type, "error", err)
			sess.emit(Event{Type: EventError, Error: err.Error()})
		}
	}
}

func (h *Handler) outputLoop(ctx context.Context, ws *websocket.Conn, events <-chan Event, visitorID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := writeJSON(ctx, ws, ev); err != nil {
				if ctx.Err() == nil {
					slog.Debug("WebSocket write error", "error", err, "visitor_id", visitorID)
				}
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
