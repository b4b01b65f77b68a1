package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"studycompanion/server/internal/chat"
	"studycompanion/server/internal/metrics"
	"studycompanion/server/internal/middleware"
	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
)

// SendMessageRequest is the JSON form of a composed message
type SendMessageRequest struct {
	Content string `json:"content"`
}

// TutorMessageRequest is a tutor question with optional document context
type TutorMessageRequest struct {
	Content    string `json:"content"`
	DocumentID string `json:"documentId,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

type MessageHandler struct {
	messages       store.MessageStore
	uploader       *chat.Uploader
	responder      chat.Responder
	appendTimeout  time.Duration
	maxUploadBytes int
}

func NewMessageHandler(messages store.MessageStore, uploader *chat.Uploader, responder chat.Responder, appendTimeout time.Duration, maxUploadBytes int) *MessageHandler {
	return &MessageHandler{
		messages:       messages,
		uploader:       uploader,
		responder:      responder,
		appendTimeout:  appendTimeout,
		maxUploadBytes: maxUploadBytes,
	}
}

// ListGroupMessages returns the group's current history rendered for the caller
func (h *MessageHandler) ListGroupMessages(c *fiber.Ctx) error {
	return h.list(c, store.GroupRoom(c.Params("groupId")))
}

// SendGroupMessage composes a message from JSON or a multipart form with files
func (h *MessageHandler) SendGroupMessage(c *fiber.Ctx) error {
	var content string
	var files []chat.File

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "Invalid multipart form")
		}
		if v := form.Value["content"]; len(v) > 0 {
			content = v[0]
		}
		files = readFiles(form, h.maxUploadBytes)
		if len(form.File["files"]) > 0 && len(files) == 0 && strings.TrimSpace(content) == "" {
			return fail(c, fiber.StatusBadRequest, "None of the files could be read")
		}
	} else {
		var req SendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "Invalid request body")
		}
		content = req.Content
	}

	return h.compose(c, chat.Config{RoomPath: store.GroupRoom}, c.Params("groupId"), content, files)
}

// ListTutorMessages returns the caller's tutor conversation
func (h *MessageHandler) ListTutorMessages(c *fiber.Ctx) error {
	return h.list(c, store.TutorRoom(middleware.GetUserID(c)))
}

// SendTutorMessage stores a question; the tutor reply follows it in the room
func (h *MessageHandler) SendTutorMessage(c *fiber.Ctx) error {
	var req TutorMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	cfg := chat.Config{RoomPath: store.TutorRoom, Responder: h.responder}
	if req.DocumentID != "" || req.Subject != "" || req.Topic != "" {
		cfg.Context = &models.MessageContext{DocumentID: req.DocumentID, Subject: req.Subject, Topic: req.Topic}
	}

	return h.compose(c, cfg, middleware.GetUserID(c), req.Content, nil)
}

// GetTool returns the canned output of one tutor tool
func (h *MessageHandler) GetTool(c *fiber.Ctx) error {
	tool, err := chat.ParseTool(c.Params("tool"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Unknown tool")
	}

	out, err := chat.OutputFor(tool)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Unknown tool")
	}
	metrics.ToolSelections.WithLabelValues(string(tool)).Inc()

	return ok(c, fiber.StatusOK, out)
}

func (h *MessageHandler) list(c *fiber.Ctx, room string) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.appendTimeout)
	defer cancel()

	msgs, err := store.Snapshot(ctx, h.messages, room)
	if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("snapshot failed")
		return fail(c, fiber.StatusServiceUnavailable, "Messages are unavailable right now")
	}

	return ok(c, fiber.StatusOK, chat.ClassifyAll(msgs, middleware.GetUserID(c)))
}

// compose runs one send through a short-lived session and reports the
// settled entry: 201 when committed, 202 when the store rejected it.
func (h *MessageHandler) compose(c *fiber.Ctx, cfg chat.Config, roomID, content string, files []chat.File) error {
	viewer := middleware.GetIdentity(c)

	cfg.Store = h.messages
	cfg.Uploader = h.uploader
	cfg.AppendTimeout = h.appendTimeout
	cfg.SubscribeTimeout = h.appendTimeout
	cfg.Logger = log.Logger
	session := chat.NewSession(cfg)

	if err := session.Bind(c.UserContext(), roomID, viewer); err != nil {
		if errors.Is(err, chat.ErrNoViewer) {
			return fail(c, fiber.StatusUnauthorized, "Unauthorized")
		}
		log.Warn().Err(err).Str("room", roomID).Msg("composing without a live subscription")
	}
	defer session.Unbind()

	var msg models.Message
	var err error
	if len(files) > 0 {
		msg, err = session.SendFiles(c.UserContext(), content, files)
	} else {
		msg, err = session.Send(content, nil)
	}
	if errors.Is(err, chat.ErrEmptyMessage) {
		return fail(c, fiber.StatusBadRequest, "Message needs text or at least one uploaded file")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to send message")
	}

	session.Wait()
	for _, m := range session.Messages() {
		if m.ClientID == msg.ClientID {
			msg = m
			break
		}
	}

	status := fiber.StatusCreated
	if msg.Status == models.StatusFailed {
		status = fiber.StatusAccepted
	}
	return ok(c, status, chat.Classify(msg, viewer.ID))
}
