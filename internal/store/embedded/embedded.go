// Package embedded is a pebble-backed MessageStore for single-node deployments.
// Each room is a key range; keys sort by commit time so a prefix scan yields
// the room in timestamp order.
package embedded

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
)

// MessageStore persists room logs in a pebble database.
type MessageStore struct {
	db   *pebble.DB
	feed *store.Feed
	log  zerolog.Logger
	now  func() time.Time

	// seq reduces key collisions when commits share a nanosecond
	seq uint64

	// mu serializes appends so a room's snapshots are published in commit order
	mu   sync.Mutex
	last map[string]time.Time
}

// Open opens (or creates) the database at path.
func Open(path string, logger zerolog.Logger) (*MessageStore, error) {
	return open(path, &pebble.Options{}, logger)
}

// OpenInMemory opens a database backed by an in-memory filesystem.
func OpenInMemory(logger zerolog.Logger) (*MessageStore, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, logger)
}

func open(path string, opts *pebble.Options, logger zerolog.Logger) (*MessageStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %q: %w", path, err)
	}

	logger.Info().Str("path", path).Msg("pebble opened")

	return &MessageStore{
		db:   db,
		feed: store.NewFeed(),
		log:  logger,
		now:  time.Now,
		last: make(map[string]time.Time),
	}, nil
}

// Close closes the database.
func (s *MessageStore) Close() error {
	return s.db.Close()
}

func roomPrefix(room string) []byte {
	return []byte("room:" + room + ":msg:")
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Append commits msg under a time-ordered key and publishes the new snapshot.
func (s *MessageStore) Append(ctx context.Context, room string, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	committed := msg.Clone()
	committed.ID = uuid.NewString()
	committed.Room = room
	committed.Status = ""
	committed.Timestamp = s.now().UTC()
	if last, ok := s.last[room]; ok && !committed.Timestamp.After(last) {
		committed.Timestamp = last.Add(time.Nanosecond)
	}

	data, err := json.Marshal(committed)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}

	seq := atomic.AddUint64(&s.seq, 1)
	key := fmt.Sprintf("%s%020d-%06d", roomPrefix(room), committed.Timestamp.UnixNano(), seq%1_000_000)

	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		s.log.Error().Err(err).Str("room", room).Msg("append failed")
		return models.Message{}, fmt.Errorf("write message: %w", err)
	}
	s.last[room] = committed.Timestamp

	snap, err := s.list(room)
	if err != nil {
		// The write is durable; subscribers catch up on the next append.
		s.log.Warn().Err(err).Str("room", room).Msg("list after append failed")
		return committed, nil
	}
	s.feed.Publish(room, snap)

	return committed, nil
}

// Subscribe streams snapshots of room, beginning with its stored history.
func (s *MessageStore) Subscribe(ctx context.Context, room string) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.list(room)
	if err != nil {
		return nil, err
	}

	return s.feed.Subscribe(ctx, room, snap), nil
}

func (s *MessageStore) list(room string) ([]models.Message, error) {
	prefix := roomPrefix(room)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close() //nolint:errcheck

	var out []models.Message
	for iter.First(); iter.Valid(); iter.Next() {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode message %q: %w", iter.Key(), err)
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate room %q: %w", room, err)
	}

	if len(out) > 0 {
		if _, ok := s.last[room]; !ok {
			s.last[room] = out[len(out)-1].Timestamp
		}
	}
	return out, nil
}
