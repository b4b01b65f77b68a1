package chat

import (
	"time"

	"studycompanion/server/internal/models"
)

type Alignment string

const (
	AlignSelf  Alignment = "self"
	AlignOther Alignment = "other"
)

// AttachmentView is an attachment as displayed: images inline, anything else
// as a link.
type AttachmentView struct {
	Kind   models.AttachmentKind `json:"type"`
	URL    string                `json:"url"`
	Name   string                `json:"name"`
	Inline bool                  `json:"inline"`
}

// View is the display form of a message for one viewer.
type View struct {
	ID           string                 `json:"id"`
	Content      string                 `json:"content"`
	Alignment    Alignment              `json:"alignment"`
	DisplayName  string                 `json:"displayName"`
	Timestamp    time.Time              `json:"timestamp"`
	Status       string                 `json:"status"`
	Attachments  []AttachmentView       `json:"attachments"`
	Context      *models.MessageContext `json:"context,omitempty"`
	ContextLabel string                 `json:"contextLabel,omitempty"`
}

// Classify renders msg for viewerID. It has no side effects.
func Classify(msg models.Message, viewerID string) View {
	v := View{
		ID:          msg.ID,
		Content:     msg.Content,
		Alignment:   AlignOther,
		DisplayName: msg.Sender.Name,
		Timestamp:   msg.Timestamp,
		Status:      msg.Status,
		Attachments: make([]AttachmentView, 0, len(msg.Attachments)),
	}

	if viewerID != "" && msg.Sender.ID == viewerID {
		v.Alignment = AlignSelf
	}
	if v.DisplayName == "" {
		v.DisplayName = msg.Sender.ID
	}
	if v.Status == "" {
		v.Status = models.StatusSent
	}

	for _, a := range msg.Attachments {
		v.Attachments = append(v.Attachments, AttachmentView{
			Kind:   a.Kind,
			URL:    a.URL,
			Name:   a.Name,
			Inline: a.Kind == models.AttachmentImage,
		})
	}

	if msg.Context != nil {
		c := *msg.Context
		v.Context = &c
		if c.DocumentID != "" {
			v.ContextLabel = "Context: Document " + c.DocumentID
		}
	}

	return v
}

func ClassifyAll(msgs []models.Message, viewerID string) []View {
	views := make([]View, len(msgs))
	for i, m := range msgs {
		views[i] = Classify(m, viewerID)
	}
	return views
}
