// Package postgres is the MessageStore used in production. Appends notify on
// a LISTEN channel. One listener connection per store re-reads a room's
// ordered log when the room is named in a notification and fans it out to
// the room's subscribers.
package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
)

const (
	notifyChannel  = "chat_messages"
	refreshTimeout = 10 * time.Second
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
)

// MessageStore stores room logs in the chat_messages table.
type MessageStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
	feed *store.Feed

	// mu orders history reads against published snapshots
	mu sync.Mutex

	readyMu   sync.Mutex
	ready     chan struct{}
	listening bool

	startOnce sync.Once
	closeOnce sync.Once
	stop      context.CancelFunc
	done      chan struct{}
	closed    chan struct{}
}

// New creates a store on an existing pool. The listener connection is opened
// on the first Subscribe.
func New(pool *pgxpool.Pool, logger zerolog.Logger) *MessageStore {
	return &MessageStore{
		pool:   pool,
		log:    logger,
		feed:   store.NewFeed(),
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Append inserts msg and notifies listeners of its room in the same transaction.
func (s *MessageStore) Append(ctx context.Context, room string, msg models.Message) (models.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	attachments := msg.Attachments
	if attachments == nil {
		attachments = []models.Attachment{}
	}

	committed := msg.Clone()
	committed.Room = room
	committed.Status = ""

	err = tx.QueryRow(ctx, `
		INSERT INTO chat_messages (room, client_id, content, sender_id, sender_name, attachments, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at
	`, room, msg.ClientID, msg.Content, msg.Sender.ID, msg.Sender.Name, attachments, msg.Context).
		Scan(&committed.ID, &committed.Timestamp)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", notifyChannel, room); err != nil {
		return models.Message{}, fmt.Errorf("notify room: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Message{}, fmt.Errorf("commit append: %w", err)
	}

	return committed, nil
}

// Subscribe reads the room's ordered log and registers for the snapshots the
// shared listener publishes after each append to the room. It borrows a pooled
// connection only for the history read.
func (s *MessageStore) Subscribe(ctx context.Context, room string) (store.Subscription, error) {
	s.start()

	if err := s.waitListening(ctx); err != nil {
		return nil, fmt.Errorf("wait for listener: %w", err)
	}

	// History is read after LISTEN is active and under mu, so an append either
	// lands in this read or is republished once the stream is registered.
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.list(ctx, room)
	if err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx, room, snap), nil
}

// Close stops the listener. Open subscriptions stop receiving snapshots.
func (s *MessageStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.startOnce.Do(func() {})
		if s.stop != nil {
			s.stop()
			<-s.done
		}
	})
	return nil
}

func (s *MessageStore) start() {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.done = make(chan struct{})
		go s.run(ctx)
	})
}

func (s *MessageStore) waitListening(ctx context.Context) error {
	s.readyMu.Lock()
	ready := s.ready
	s.readyMu.Unlock()

	select {
	case <-ready:
		return nil
	case <-s.closed:
		return store.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *MessageStore) setListening(on bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()

	if on == s.listening {
		return
	}
	s.listening = on
	if on {
		close(s.ready)
	} else {
		s.ready = make(chan struct{})
	}
}

// run keeps one connection, outside the pool, listening for appends and
// reconnects with backoff when it drops.
func (s *MessageStore) run(ctx context.Context) {
	defer close(s.done)

	backoff := minBackoff
	for {
		connected, err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = minBackoff
		}

		s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("notification listener lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *MessageStore) listenOnce(ctx context.Context) (bool, error) {
	conn, err := pgx.ConnectConfig(ctx, s.pool.Config().ConnConfig.Copy())
	if err != nil {
		return false, fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}

	s.setListening(true)
	defer s.setListening(false)
	s.log.Debug().Msg("notification listener ready")

	// Appends made while the listener was down were never announced
	for _, room := range s.feed.Rooms() {
		s.refresh(ctx, room)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		s.refresh(ctx, n.Payload)
	}
}

// refresh re-reads room and publishes it to its subscribers. A failed read
// leaves subscribers on their previous snapshot.
func (s *MessageStore) refresh(ctx context.Context, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feed.Subscribers(room) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	snap, err := s.list(ctx, room)
	if err != nil {
		s.log.Warn().Err(err).Str("room", room).Msg("refresh failed")
		return
	}
	s.feed.Publish(room, snap)
}

func (s *MessageStore) list(ctx context.Context, room string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, client_id, room, content, sender_id, sender_name, attachments, context, created_at
		FROM chat_messages
		WHERE room = $1
		ORDER BY created_at ASC, seq ASC
	`, room)
	if err != nil {
		return nil, fmt.Errorf("query room %q: %w", room, err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID, &m.ClientID, &m.Room, &m.Content, &m.Sender.ID, &m.Sender.Name,
			&m.Attachments, &m.Context, &m.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(m.Attachments) == 0 {
			m.Attachments = nil
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read room %q: %w", room, err)
	}

	return messages, nil
}
