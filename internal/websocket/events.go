package websocket

import (
	"encoding/json"
	"time"

	"studycompanion/server/internal/chat"
)

// EventType represents different WebSocket event types
type EventType string

const (
	// Server to client
	EventSnapshot   EventType = "snapshot"
	EventToolOutput EventType = "tool_output"
	EventError      EventType = "error"

	// Client to server
	EventSendMessage EventType = "send_message"
	EventSelectTool  EventType = "select_tool"

	// Both directions, relayed to the rest of the room
	EventTypingStart EventType = "typing_start"
	EventTypingStop  EventType = "typing_stop"
)

// WSMessage is the envelope of every outgoing event
type WSMessage struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// IncomingMessage is the envelope of every client event
type IncomingMessage struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SnapshotPayload carries the full visible list rendered for the receiver
type SnapshotPayload struct {
	Room     string      `json:"room"`
	Messages []chat.View `json:"messages"`
}

// SendMessagePayload is a composed message with optional inline files
type SendMessagePayload struct {
	Content string        `json:"content"`
	Files   []FilePayload `json:"files,omitempty"`
}

// FilePayload is a file sent over the socket, Data is base64
type FilePayload struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
}

type SelectToolPayload struct {
	Tool string `json:"tool"`
}

// TypingPayload represents typing indicator payload
type TypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Room     string `json:"room"`
}

// ErrorPayload represents error event payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
