package models

import "time"

// AttachmentKind is how an attachment is displayed: inline image or file link
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Delivery states of a message as seen by its sender. Committed store entries carry no status.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Sender is the identity reference stored on every message
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Attachment is an uploaded blob referenced by a message
type Attachment struct {
	Kind AttachmentKind `json:"type"`
	URL  string         `json:"url"`
	Name string         `json:"name"`
}

// MessageContext is tutor metadata carried through to storage untouched
type MessageContext struct {
	DocumentID string `json:"documentId,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

// Message represents a chat message in a room
type Message struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"clientId,omitempty"` // Provisional id assigned by the sender
	Room        string          `json:"room"`
	Content     string          `json:"content"`
	Sender      Sender          `json:"sender"`
	Timestamp   time.Time       `json:"timestamp"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	Context     *MessageContext `json:"context,omitempty"`
	Status      string          `json:"status,omitempty"` // Client-side only, never persisted
}

// Clone returns a copy that shares no slices or pointers with m
func (m Message) Clone() Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Context != nil {
		ctx := *m.Context
		m.Context = &ctx
	}
	return m
}

// CloneMessages copies a message list element by element
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
