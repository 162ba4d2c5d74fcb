package widget

import (
	"github.com/ashureev/roofchat/internal/domain"
	"github.com/ashureev/roofchat/internal/linkify"
	"github.com/ashureev/roofchat/internal/popup"
)

// EventType names a server-to-renderer event.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventPopup    EventType = "popup"
	EventMessage  EventType = "message"
	EventTyping   EventType = "typing"
	EventChat     EventType = "chat"
	EventChatID   EventType = "chat_id"
	EventError    EventType = "error"
	EventPong     EventType = "pong"
)

// Event is one JSON frame sent to the renderer.
type Event struct {
	Type     EventType    `json:"type"`
	Popup    *PopupView   `json:"popup,omitempty"`
	Message  *MessageView `json:"message,omitempty"`
	Typing   *bool        `json:"typing,omitempty"`
	ChatOpen *bool        `json:"chatOpen,omitempty"`
	ChatID   string       `json:"chatId,omitempty"`
	Snapshot *Snapshot    `json:"snapshot,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// PopupView is the renderer's view of the popup bubble.
type PopupView struct {
	State   string `json:"state"`
	Visible bool   `json:"visible"`
}

// MessageView is a chat message with its text pre-segmented for links.
type MessageView struct {
	domain.ChatMessage
	Segments []linkify.Segment `json:"segments"`
}

// Snapshot is the full widget state, sent on connect.
type Snapshot struct {
	ChatOpen bool          `json:"chatOpen"`
	Popup    PopupView     `json:"popup"`
	Messages []MessageView `json:"messages"`
	Typing   bool          `json:"typing"`
	ChatID   string        `json:"chatId,omitempty"`
	Input    string        `json:"input"`
}

// CommandType names a renderer-to-server command.
type CommandType string

const (
	CommandOpen       CommandType = "open"
	CommandClose      CommandType = "close"
	CommandToggle     CommandType = "toggle"
	CommandDismiss    CommandType = "dismiss"
	CommandPopupClick CommandType = "popup_click"
	CommandSend       CommandType = "send"
	CommandInput      CommandType = "input"
	CommandPing       CommandType = "ping"
)

// Command is one JSON frame received from the renderer.
type Command struct {
	Type CommandType `json:"type"`
	Text string      `json:"text,omitempty"`
}

func popupView(s popup.State) PopupView {
	return PopupView{State: s.String(), Visible: s == popup.Visible}
}

func messageView(m domain.ChatMessage) MessageView {
	return MessageView{ChatMessage: m, Segments: linkify.Split(m.Text)}
}
