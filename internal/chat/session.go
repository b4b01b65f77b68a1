// Package chat keeps one room's live message list in sync with the message
// store: optimistic local echo on send, full-snapshot refresh on every store
// update, attachment upload fan-out, and the pure rendering policy.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studycompanion/server/internal/metrics"
	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
)

var (
	ErrEmptyMessage = errors.New("message has no content and no attachments")
	ErrNotBound     = errors.New("session is not bound to a room")
	ErrNoViewer     = errors.New("viewer identity is required")
	ErrNoUploader   = errors.New("session has no upload coordinator")
)

const (
	defaultAppendTimeout    = 10 * time.Second
	defaultSubscribeTimeout = 10 * time.Second
)

// ChangeFunc receives the visible list after every change. Calls are
// serialized. It must not call Bind or Unbind on the same session.
type ChangeFunc func(messages []models.Message)

type Config struct {
	Store     store.MessageStore
	Uploader  *Uploader
	Responder Responder

	// Context is attached to every message sent from this session.
	Context *models.MessageContext

	// RoomPath maps a room id to its store path. Defaults to store.GroupRoom.
	RoomPath func(roomID string) string

	OnChange      ChangeFunc
	AppendTimeout time.Duration
	// SubscribeTimeout bounds how long Bind waits for the store subscription.
	// It does not limit the lifetime of the subscription.
	SubscribeTimeout time.Duration
	Now           func() time.Time
	NewID         func() string
	Logger        zerolog.Logger
}

// Session owns the visible message list of exactly one room for one viewer.
type Session struct {
	cfg    Config
	logger zerolog.Logger

	// bindMu serializes Bind and Unbind
	bindMu sync.Mutex

	mu       sync.Mutex
	bound    bool
	gen      uint64
	viewer   models.Identity
	roomID   string
	room     string
	snapshot []models.Message
	pending  []models.Message
	sub      store.Subscription
	cancel   context.CancelFunc
	consumer chan struct{}

	notifyMu sync.Mutex
	inflight sync.WaitGroup
}

func NewSession(cfg Config) *Session {
	if cfg.RoomPath == nil {
		cfg.RoomPath = store.GroupRoom
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = defaultAppendTimeout
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = defaultSubscribeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return "local-" + uuid.NewString() }
	}

	return &Session{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "chat").Logger(),
	}
}

// Bind subscribes the session to roomID on behalf of viewer, replacing any
// previous binding. A failed subscription leaves the session bound with an
// empty list so that local sends still echo.
func (s *Session) Bind(ctx context.Context, roomID string, viewer models.Identity) error {
	if viewer.ID == "" {
		return ErrNoViewer
	}

	s.bindMu.Lock()
	defer s.bindMu.Unlock()

	s.unbind()

	room := s.cfg.RoomPath(roomID)
	sub, cancel, err := s.subscribe(ctx, room)

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.bound = true
	s.viewer = viewer
	s.roomID = roomID
	s.room = room
	s.snapshot = nil
	s.pending = nil
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("room", room).Msg("subscription failed")
		s.notify()
		return fmt.Errorf("subscribe %s: %w", room, err)
	}
	done := make(chan struct{})
	s.sub = sub
	s.cancel = cancel
	s.consumer = done
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	s.logger.Debug().Str("room", room).Str("viewer", viewer.ID).Msg("session bound")

	go s.consume(gen, sub, done)
	return nil
}

// subscribe opens the room subscription under ctx. Only the setup is bounded
// by SubscribeTimeout; a subscription that opened in time lives until cancel.
func (s *Session) subscribe(ctx context.Context, room string) (store.Subscription, context.CancelFunc, error) {
	subCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(s.cfg.SubscribeTimeout, cancel)

	sub, err := s.cfg.Store.Subscribe(subCtx, room)
	if !timer.Stop() {
		if err == nil {
			sub.Close() //nolint:errcheck
		}
		cancel()
		return nil, nil, fmt.Errorf("timed out after %s: %w", s.cfg.SubscribeTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return sub, cancel, nil
}

// Unbind releases the subscription and waits for its consumer to exit.
// In-flight sends are not cancelled. Safe to call on an unbound session.
func (s *Session) Unbind() {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()
	s.unbind()
}

func (s *Session) unbind() {
	s.mu.Lock()
	if !s.bound {
		s.mu.Unlock()
		return
	}
	sub, cancel, done := s.sub, s.cancel, s.consumer
	s.bound = false
	s.gen++
	s.sub = nil
	s.cancel = nil
	s.consumer = nil
	s.snapshot = nil
	s.pending = nil
	s.mu.Unlock()

	if sub == nil {
		return
	}

	sub.Close() //nolint:errcheck
	cancel()
	<-done
	metrics.ActiveSessions.Dec()
}

// Send echoes a new message locally and commits it to the store in the
// background. Content is stored as given; whitespace-only content counts as
// empty. Store failures are logged, never returned.
func (s *Session) Send(content string, attachments []models.Attachment) (models.Message, error) {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return models.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if !s.bound {
		s.mu.Unlock()
		return models.Message{}, ErrNotBound
	}

	id := s.cfg.NewID()
	msg := models.Message{
		ID:          id,
		ClientID:    id,
		Room:        s.room,
		Content:     content,
		Sender:      s.viewer.AsSender(),
		Timestamp:   s.cfg.Now().UTC(),
		Attachments: append([]models.Attachment(nil), attachments...),
		Status:      models.StatusPending,
	}
	if s.cfg.Context != nil {
		c := *s.cfg.Context
		msg.Context = &c
	}
	s.pending = append(s.pending, msg)
	room := s.room
	s.inflight.Add(1)
	s.mu.Unlock()

	s.notify()

	go s.commit(room, msg.Clone())
	return msg.Clone(), nil
}

// SendFiles uploads files through the coordinator and sends whatever subset
// succeeded. Nothing is sent when content is empty and every upload failed.
func (s *Session) SendFiles(ctx context.Context, content string, files []File) (models.Message, error) {
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		return models.Message{}, ErrEmptyMessage
	}
	if s.cfg.Uploader == nil {
		return models.Message{}, ErrNoUploader
	}
	if !s.Bound() {
		return models.Message{}, ErrNotBound
	}

	attachments := s.cfg.Uploader.UploadAll(ctx, files)
	return s.Send(content, attachments)
}

// Messages returns the visible list: the last snapshot followed by local
// entries the snapshot does not contain yet.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

func (s *Session) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *Session) Viewer() models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer
}

// RoomID returns the id passed to Bind.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Wait blocks until every in-flight append has settled.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) consume(gen uint64, sub store.Subscription, done chan struct{}) {
	defer close(done)

	for snap := range sub.Snapshots() {
		s.applySnapshot(gen, snap)
	}

	if err := sub.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Msg("subscription ended")
	}
}

func (s *Session) applySnapshot(gen uint64, snap []models.Message) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.snapshot = snap

	kept := s.pending[:0]
	for _, p := range s.pending {
		if !containsMessage(snap, p) {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	s.mu.Unlock()

	s.notify()
}

func (s *Session) commit(room string, msg models.Message) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AppendTimeout)
	defer cancel()

	out := msg.Clone()
	out.Status = ""
	committed, err := s.cfg.Store.Append(ctx, room, out)
	metrics.MessagesAppended.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		s.logger.Warn().Err(err).Str("room", room).Str("client_id", msg.ClientID).Msg("append failed")
		s.settle(msg.ClientID, nil)
		return
	}

	s.settle(msg.ClientID, &committed)

	if s.cfg.Responder != nil {
		s.respond(ctx, room, committed)
	}
}

// settle moves a pending entry to sent with its committed id, or to failed.
// An entry settles at most once.
func (s *Session) settle(clientID string, committed *models.Message) {
	s.mu.Lock()
	changed := false
	for i := range s.pending {
		p := &s.pending[i]
		if p.ClientID != clientID || p.Status != models.StatusPending {
			continue
		}
		if committed == nil {
			p.Status = models.StatusFailed
		} else {
			p.ID = committed.ID
			p.Timestamp = committed.Timestamp
			p.Status = models.StatusSent
			if containsMessage(s.snapshot, *p) {
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
			}
		}
		changed = true
		break
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

func (s *Session) respond(ctx context.Context, room string, question models.Message) {
	reply, err := s.cfg.Responder.Respond(ctx, question)
	if err != nil {
		s.logger.Warn().Err(err).Msg("tutor responder failed")
		return
	}

	reply.Sender = TutorSender
	reply.Room = room
	reply.Status = ""
	if reply.Context == nil && question.Context != nil {
		c := *question.Context
		reply.Context = &c
	}
	if reply.Timestamp.IsZero() {
		reply.Timestamp = s.cfg.Now().UTC()
	}

	_, err = s.cfg.Store.Append(ctx, room, reply)
	metrics.MessagesAppended.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Warn().Err(err).Str("room", room).Msg("tutor reply append failed")
	}
}

func (s *Session) notify() {
	if s.cfg.OnChange == nil {
		return
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.cfg.OnChange(s.Messages())
}

func (s *Session) visibleLocked() []models.Message {
	out := make([]models.Message, 0, len(s.snapshot)+len(s.pending))
	for _, m := range s.snapshot {
		out = append(out, m.Clone())
	}
	for _, m := range s.pending {
		out = append(out, m.Clone())
	}
	return out
}

func containsMessage(snap []models.Message, m models.Message) bool {
	for _, c := range snap {
		if c.ID == m.ID || (m.ClientID != "" && c.ClientID == m.ClientID) {
			return true
		}
	}
	return false
}
