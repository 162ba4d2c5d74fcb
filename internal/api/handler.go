// Package api provides HTTP handlers for the roofchat admin panel and the
// public widget helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/roofchat/internal/auth"
	"github.com/ashureev/roofchat/internal/chatapi"
	"github.com/ashureev/roofchat/internal/domain"
	"github.com/ashureev/roofchat/internal/middleware"
)

const maxBodyBytes = 64 << 10

// ChatBackend is the part of the remote chat API the handlers use.
type ChatBackend interface {
	Histories(ctx context.Context) ([]domain.History, error)
	History(ctx context.Context, chatID string) ([]domain.ChatMessage, error)
	DeleteChat(ctx context.Context, chatID string) error
	SaveUser(ctx context.Context, req chatapi.ContactRequest) (json.RawMessage, error)
}

// Handler provides common handler utilities.
type Handler struct {
	chat  ChatBackend
	gate  *auth.Gate
	local middleware.StoreFunc
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(chat ChatBackend, gate *auth.Gate, local middleware.StoreFunc) *Handler {
	return &Handler{
		chat:  chat,
		gate:  gate,
		local: local,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// upstreamError reports a failed chat API call. Upstream 404s pass through;
// everything else is a bad gateway.
func upstreamError(w http.ResponseWriter, op string, err error) {
	var statusErr *chatapi.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	slog.Error("Chat API call failed", "op", op, "error", err)
	Error(w, http.StatusBadGateway, "chat service unavailable")
}
