package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"studycompanion/server/internal/chat"
	"studycompanion/server/internal/metrics"
	"studycompanion/server/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Client is one websocket connection bound to one chat session.
type Client struct {
	ID   string
	User models.Identity
	Room string
	Conn *websocket.Conn
	Hub  *Hub

	Session *chat.Session
	Tools   *chat.ToolPanel

	// MaxFileBytes caps each decoded file of a send_message event, 0 means no cap
	MaxFileBytes int

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a client for user in room. Attach a session before
// starting the pumps.
func NewClient(user models.Identity, room string, conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     uuid.NewString(),
		User:   user,
		Room:   room,
		Conn:   conn,
		Hub:    hub,
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan []byte, sendBuffer),
	}
}

// Context is cancelled when the connection goes away.
func (c *Client) Context() context.Context {
	return c.ctx
}

// ReadPump handles incoming messages until the connection closes
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.ID).Msg("websocket read error")
			}
			return
		}

		c.Handle(message)
	}
}

// WritePump writes queued events and pings until the send queue is closed
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("client", c.ID).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handle processes one raw client event
func (c *Client) Handle(raw []byte) {
	var incoming IncomingMessage
	if err := json.Unmarshal(raw, &incoming); err != nil {
		c.SendError("invalid_event", "event must be a JSON object")
		return
	}

	switch incoming.Type {
	case EventSendMessage:
		c.handleSendMessage(incoming.Payload)
	case EventSelectTool:
		c.handleSelectTool(incoming.Payload)
	case EventTypingStart, EventTypingStop:
		c.Hub.BroadcastToRoom(c.Room, WSMessage{
			Type:      incoming.Type,
			Payload:   TypingPayload{UserID: c.User.ID, UserName: c.User.DisplayName, Room: c.Room},
			Timestamp: time.Now(),
		}, c.ID)
	default:
		log.Debug().Str("type", string(incoming.Type)).Msg("unknown websocket event")
		c.SendError("unknown_event", fmt.Sprintf("unknown event type %q", incoming.Type))
	}
}

func (c *Client) handleSendMessage(raw json.RawMessage) {
	if c.Session == nil {
		c.SendError("not_bound", chat.ErrNotBound.Error())
		return
	}

	var payload SendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError("invalid_payload", "send_message payload is malformed")
		return
	}

	files, err := c.decodeFiles(payload.Files)
	if err != nil {
		c.SendError("invalid_payload", err.Error())
		return
	}

	if len(files) > 0 {
		_, err = c.Session.SendFiles(c.ctx, payload.Content, files)
	} else {
		_, err = c.Session.Send(payload.Content, nil)
	}

	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.SendError("empty_message", "message needs text or at least one uploaded file")
	case err != nil:
		c.SendError("send_failed", err.Error())
	}
}

func (c *Client) decodeFiles(in []FilePayload) ([]chat.File, error) {
	files := make([]chat.File, 0, len(in))
	for _, f := range in {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, fmt.Errorf("file %q is not valid base64", f.Name)
		}
		if c.MaxFileBytes > 0 && len(data) > c.MaxFileBytes {
			log.Warn().Str("file", f.Name).Int("size", len(data)).Msg("file exceeds upload limit, dropping")
			continue
		}
		files = append(files, chat.File{Name: f.Name, MediaType: f.MediaType, Data: data})
	}
	return files, nil
}

func (c *Client) handleSelectTool(raw json.RawMessage) {
	if c.Tools == nil {
		c.SendError("tools_unavailable", "tools are only available in the tutor room")
		return
	}

	var payload SelectToolPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.SendError("invalid_payload", "select_tool payload is malformed")
		return
	}

	tool, err := chat.ParseTool(payload.Tool)
	if err != nil {
		c.SendError("unknown_tool", err.Error())
		return
	}

	out, err := c.Tools.Select(tool)
	if err != nil {
		c.SendError("unknown_tool", err.Error())
		return
	}
	metrics.ToolSelections.WithLabelValues(string(tool)).Inc()

	c.SendMessage(WSMessage{Type: EventToolOutput, Payload: out, Timestamp: time.Now()})
}

// PushSnapshot renders the visible list for this client and queues it.
// It is the session's change handler.
func (c *Client) PushSnapshot(messages []models.Message) {
	c.SendMessage(WSMessage{
		Type: EventSnapshot,
		Payload: SnapshotPayload{
			Room:     c.Room,
			Messages: chat.ClassifyAll(messages, c.User.ID),
		},
		Timestamp: time.Now(),
	})
}

func (c *Client) SendError(code, message string) {
	c.SendMessage(WSMessage{
		Type:      EventError,
		Payload:   ErrorPayload{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// SendMessage queues an event. A client whose queue is full is disconnected.
func (c *Client) SendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal websocket event")
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("client", c.ID).Msg("send queue full, disconnecting slow client")
		c.closeLocked()
		go c.Hub.Unregister(c)
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.cancel()
}
