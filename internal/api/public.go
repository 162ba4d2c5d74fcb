package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/roofchat/internal/chatapi"
	"github.com/ashureev/roofchat/internal/linkify"
)

// PublicHandler serves the unauthenticated widget helpers.
type PublicHandler struct {
	*Handler
}

// NewPublicHandler creates a new public handler.
func NewPublicHandler(base *Handler) *PublicHandler {
	return &PublicHandler{Handler: base}
}

// RegisterRoutes registers public routes.
func (h *PublicHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/contact", h.Contact)
		r.Post("/linkify", h.Linkify)
	})
}

// Contact forwards a contact-form submission to the chat API.
func (h *PublicHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var req chatapi.ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" && req.Email == "" {
		Error(w, http.StatusBadRequest, "name or email is required")
		return
	}

	saved, err := h.chat.SaveUser(r.Context(), req)
	if err != nil {
		upstreamError(w, "save user", err)
		return
	}
	if len(saved) == 0 {
		saved = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(saved)
}

type linkifyRequest struct {
	Text string `json:"text"`
}

type linkifyResponse struct {
	Segments []linkify.Segment `json:"segments"`
	HTML     string            `json:"html"`
}

// Linkify splits text into plain, URL and phone segments.
func (h *PublicHandler) Linkify(w http.ResponseWriter, r *http.Request) {
	var req linkifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusOK, linkifyResponse{
		Segments: linkify.Split(req.Text),
		HTML:     linkify.HTML(req.Text),
	})
}
