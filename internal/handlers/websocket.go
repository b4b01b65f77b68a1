package handlers

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"studycompanion/server/internal/chat"
	"studycompanion/server/internal/middleware"
	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
	ws "studycompanion/server/internal/websocket"
)

type WebSocketHandler struct {
	hub           *ws.Hub
	messages      store.MessageStore
	uploader      *chat.Uploader
	responder     chat.Responder
	appendTimeout time.Duration
	maxFileBytes  int
}

func NewWebSocketHandler(hub *ws.Hub, messages store.MessageStore, uploader *chat.Uploader, responder chat.Responder, appendTimeout time.Duration, maxFileBytes int) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		messages:      messages,
		uploader:      uploader,
		responder:     responder,
		appendTimeout: appendTimeout,
		maxFileBytes:  maxFileBytes,
	}
}

// Upgrade checks if the request should be upgraded to WebSocket
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fail(c, fiber.StatusUpgradeRequired, "WebSocket upgrade required")
}

// GroupRoom streams one study group's messages
func (h *WebSocketHandler) GroupRoom(c *websocket.Conn) {
	h.serve(c, c.Params("groupId"), chat.Config{RoomPath: store.GroupRoom}, nil)
}

// TutorRoom streams the caller's tutor conversation with the tool panel.
// ?documentId= sets the document context of questions sent on this socket.
func (h *WebSocketHandler) TutorRoom(c *websocket.Conn) {
	viewer, _ := c.Locals(middleware.IdentityKey).(models.Identity)

	cfg := chat.Config{RoomPath: store.TutorRoom, Responder: h.responder}
	if doc := c.Query("documentId"); doc != "" {
		cfg.Context = &models.MessageContext{DocumentID: doc}
	}
	h.serve(c, viewer.ID, cfg, chat.NewToolPanel())
}

func (h *WebSocketHandler) serve(c *websocket.Conn, roomID string, cfg chat.Config, tools *chat.ToolPanel) {
	viewer, _ := c.Locals(middleware.IdentityKey).(models.Identity)

	client := ws.NewClient(viewer, cfg.RoomPath(roomID), c, h.hub)
	client.Tools = tools
	client.MaxFileBytes = h.maxFileBytes

	cfg.Store = h.messages
	cfg.Uploader = h.uploader
	cfg.AppendTimeout = h.appendTimeout
	cfg.SubscribeTimeout = h.appendTimeout
	cfg.OnChange = client.PushSnapshot
	cfg.Logger = log.Logger
	client.Session = chat.NewSession(cfg)

	h.hub.Register(client)
	go client.WritePump()

	if err := client.Session.Bind(client.Context(), roomID, viewer); err != nil {
		log.Warn().Err(err).Str("room", client.Room).Msg("websocket session bind failed")
		client.SendError("subscribe_failed", "live updates are unavailable, messages may be stale")
	}
	if tools != nil {
		client.SendMessage(ws.WSMessage{Type: ws.EventToolOutput, Payload: tools.Output(), Timestamp: time.Now()})
	}

	client.ReadPump()
	client.Session.Unbind()
}

// Stats returns WebSocket connection statistics
func (h *WebSocketHandler) Stats(c *fiber.Ctx) error {
	return ok(c, fiber.StatusOK, fiber.Map{
		"onlineUsers": h.hub.GetOnlineCount(),
		"userIds":     h.hub.GetOnlineUsers(),
	})
}
