// Package chatapi is a client for the remote chat and history HTTP API.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/roofchat/internal/domain"
)

// DefaultTimeout bounds every API call unless overridden.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// ErrNullReply is returned by Send when the API answers with a JSON null.
var ErrNullReply = errors.New("null reply")

// Reply is the API's answer to one user message.
type Reply struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContactRequest is a contact-form submission.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat api %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the chat API over JSON/HTTP.
type Client struct {
	baseURL  string
	chatPath string
	http     *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithChatPath sets the path messages are posted to. An empty path posts to
// the base URL itself.
func WithChatPath(path string) Option {
	return func(c *Client) { c.chatPath = path }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		chatPath: "/chat",
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts one user message. chatID is omitted from the body when empty.
func (c *Client) Send(ctx context.Context, text, chatID string) (Reply, error) {
	body := map[string]string{"messages": text}
	if chatID != "" {
		body["chatId"] = chatID
	}

	var reply *Reply
	if err := c.do(ctx, http.MethodPost, c.chatPath, body, &reply); err != nil {
		return Reply{}, err
	}
	if reply == nil {
		return Reply{}, fmt.Errorf("%s %s: %w", http.MethodPost, c.chatPath, ErrNullReply)
	}
	return *reply, nil
}

// Histories lists every stored conversation.
func (c *Client) Histories(ctx context.Context) ([]domain.History, error) {
	var out []domain.History
	if err := c.do(ctx, http.MethodGet, "/histories", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.History{}
	}
	return out, nil
}

type conversationEntry struct {
	ID        json.RawMessage `json:"id"`
	Role      string          `json:"role"`
	Messages  string          `json:"messages"`
	Content   string          `json:"content"`
	Text      string          `json:"text"`
	Timestamp *time.Time      `json:"timestamp"`
}

// History fetches one conversation and maps it to widget messages.
func (c *Client) History(ctx context.Context, chatID string) ([]domain.ChatMessage, error) {
	var resp struct {
		Conversation []conversationEntry `json:"conversation"`
	}
	if err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(chatID), nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	var ids domain.MessageIDs
	out := make([]domain.ChatMessage, 0, len(resp.Conversation))
	for _, e := range resp.Conversation {
		msg := domain.ChatMessage{
			Sender:    domain.SenderBot,
			Timestamp: now,
		}
		if e.Role == "user" {
			msg.Sender = domain.SenderUser
		}
		switch {
		case e.Messages != "":
			msg.Text = e.Messages
		case e.Content != "":
			msg.Text = e.Content
		default:
			msg.Text = e.Text
		}
		if e.Timestamp != nil {
			msg.Timestamp = *e.Timestamp
		}
		msg.ID = entryID(e.ID, &ids, now)
		out = append(out, msg)
	}
	return out, nil
}

// entryID keeps numeric ids from the API and derives the rest from now.
func entryID(raw json.RawMessage, ids *domain.MessageIDs, now time.Time) int64 {
	var n int64
	if len(raw) > 0 && json.Unmarshal(raw, &n) == nil && n != 0 {
		return n
	}
	return ids.Next(now)
}

// DeleteChat removes a stored conversation.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/histories/"+url.PathEscape(chatID), nil, nil)
}

// SaveUser stores a contact-form submission and returns the API's record.
func (c *Client) SaveUser(ctx context.Context, req ContactRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/users", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
