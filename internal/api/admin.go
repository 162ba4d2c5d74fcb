package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/roofchat/internal/auth"
	"github.com/ashureev/roofchat/internal/domain"
	"github.com/ashureev/roofchat/internal/identity"
	"github.com/ashureev/roofchat/internal/linkify"
	"github.com/ashureev/roofchat/internal/middleware"
)

// keyLocks admits one holder per key; a second claim fails instead of waiting.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func (l *keyLocks) tryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *keyLocks) unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

// deleteLocks prevents concurrent delete requests for the same chat.
var deleteLocks = &keyLocks{held: make(map[string]struct{})}

// AdminHandler serves the authenticated admin panel API.
type AdminHandler struct {
	*Handler
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(base *Handler) *AdminHandler {
	return &AdminHandler{Handler: base}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.With(middleware.GuestOnly(h.gate, h.local, "/chats/history")).Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuthAPI(h.gate, h.local))
			r.Get("/me", h.Me)
			r.Get("/histories", h.ListHistories)
			r.Get("/histories/{chatId}", h.GetHistory)
			r.Delete("/histories/{chatId}", h.DeleteHistory)
		})
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks the admin credentials and stores the access token.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.gate.Login(r.Context(), h.local(r), req.Email, req.Password)
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		slog.Warn("Admin login rejected", "visitor_id", identity.VisitorIDFromContext(r.Context()), "ip", identity.IPFromRequest(r))
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		slog.Error("Admin login failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to store session")
		return
	}

	slog.Info("Admin logged in", "visitor_id", identity.VisitorIDFromContext(r.Context()))
	JSON(w, http.StatusOK, sess)
}

// Logout clears the access token.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Logout(r.Context(), h.local(r)); err != nil {
		slog.Error("Admin logout failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the logged-in admin's email.
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	email, _, err := h.local(r).Get(r.Context(), auth.EmailKey)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read session")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"email": email})
}

// HistorySummary is one row of the chat history table.
type HistorySummary struct {
	ChatID       string    `json:"chatId"`
	ShortID      string    `json:"shortId"`
	User         string    `json:"user"`
	MessageCount int       `json:"messageCount"`
	IP           string    `json:"ip"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func summarize(h *domain.History) HistorySummary {
	return HistorySummary{
		ChatID:       h.ChatID,
		ShortID:      h.ShortID(),
		User:         h.DisplayUser(),
		MessageCount: h.MessageCount(),
		IP:           h.IP,
		CreatedAt:    h.CreatedAt,
		UpdatedAt:    h.UpdatedAt,
	}
}

// ListHistories returns a summary of every stored conversation.
func (h *AdminHandler) ListHistories(w http.ResponseWriter, r *http.Request) {
	histories, err := h.chat.Histories(r.Context())
	if err != nil {
		upstreamError(w, "list histories", err)
		return
	}

	out := make([]HistorySummary, len(histories))
	for i := range histories {
		out[i] = summarize(&histories[i])
	}
	JSON(w, http.StatusOK, out)
}

type historyMessage struct {
	domain.ChatMessage
	Segments []linkify.Segment `json:"segments"`
}

// GetHistory returns one conversation with its text segmented for links.
func (h *AdminHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")
	msgs, err := h.chat.History(r.Context(), chatID)
	if err != nil {
		upstreamError(w, "get history", err)
		return
	}

	out := make([]historyMessage, len(msgs))
	for i, m := range msgs {
		out[i] = historyMessage{ChatMessage: m, Segments: linkify.Split(m.Text)}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"chatId":   chatID,
		"messages": out,
	})
}

// DeleteHistory removes a stored conversation.
func (h *AdminHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")

	if !deleteLocks.tryLock(chatID) {
		slog.Warn("Delete already in progress", "chat_id", chatID)
		Error(w, http.StatusConflict, "delete_in_progress")
		return
	}
	defer deleteLocks.unlock(chatID)

	if err := h.chat.DeleteChat(r.Context(), chatID); err != nil {
		upstreamError(w, "delete history", err)
		return
	}

	slog.Info("Chat history deleted", "chat_id", chatID)
	w.WriteHeader(http.StatusNoContent)
}
