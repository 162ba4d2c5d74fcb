package domain

import (
	"time"
)

// StoredMessage is a message as persisted by the remote chat API.
type StoredMessage struct {
	ID       string         `json:"id,omitempty"`
	Role     string         `json:"role"`
	Content  string         `json:"content,omitempty"`
	Messages string         `json:"messages,omitempty"`
	Options  []StoredOption `json:"options,omitempty"`
}

// StoredOption is a quick-reply option attached to an assistant message.
type StoredOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Value string `json:"value"`
}

// Body returns the text of the message, whichever field the API filled.
func (m StoredMessage) Body() string {
	if m.Messages != "" {
		return m.Messages
	}
	return m.Content
}

// Contact is the optional visitor identity attached to a conversation.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// History is a stored conversation record.
type History struct {
	RecordID  string          `json:"_id"`
	ChatID    string          `json:"chatId"`
	IP        string          `json:"ip"`
	Choices   []StoredMessage `json:"choices"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	User      *Contact        `json:"user,omitempty"`
}

// ShortID returns the last eight characters of the chat id.
func (h *History) ShortID() string {
	if len(h.ChatID) <= 8 {
		return h.ChatID
	}
	return h.ChatID[len(h.ChatID)-8:]
}

// DisplayUser returns the visitor's name, email, or "Anonymous".
func (h *History) DisplayUser() string {
	if h.User == nil {
		return "Anonymous"
	}
	if h.User.Name != "" {
		return h.User.Name
	}
	if h.User.Email != "" {
		return h.User.Email
	}
	return "Anonymous"
}

// MessageCount returns the number of stored messages.
func (h *History) MessageCount() int {
	return len(h.Choices)
}
