// Package domain contains core domain types for the roofchat widget.
package domain

import (
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	// SenderUser marks a message typed by the site visitor.
	SenderUser Sender = "user"
	// SenderBot marks a message produced by the assistant.
	SenderBot Sender = "bot"
)

// ChatMessage is one entry in a widget conversation.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// IsUser returns true if the visitor wrote the message.
func (m ChatMessage) IsUser() bool {
	return m.Sender == SenderUser
}

// MessageIDs issues strictly increasing message ids derived from creation
// time in Unix milliseconds. The zero value is ready to use and is not safe
// for concurrent use.
type MessageIDs struct {
	last int64
}

// Next returns an id for a message created at t.
func (g *MessageIDs) Next(t time.Time) int64 {
	id := t.UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return id
}
