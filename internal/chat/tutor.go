package chat

import (
	"context"

	"studycompanion/server/internal/models"
)

// TutorSender is the identity tutor replies are stored under.
var TutorSender = models.Sender{ID: "ai", Name: "AI Tutor"}

const simulatedReply = "I am analyzing your question. This is a simulated response. " +
	"In production, this would connect to an AI service."

// Responder produces the tutor's reply to a committed question. The session
// fills in sender, room and context.
type Responder interface {
	Respond(ctx context.Context, question models.Message) (models.Message, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, question models.Message) (models.Message, error)

func (f ResponderFunc) Respond(ctx context.Context, question models.Message) (models.Message, error) {
	return f(ctx, question)
}

// CannedResponder answers every question with the same placeholder text.
type CannedResponder struct{}

func (CannedResponder) Respond(ctx context.Context, question models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	return models.Message{Content: simulatedReply}, nil
}
