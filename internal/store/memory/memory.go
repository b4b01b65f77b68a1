// Package memory is an in-process MessageStore used by tests and by
// single-instance development servers.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
)

// MessageStore keeps every room's log in memory.
type MessageStore struct {
	mu    sync.Mutex
	rooms map[string][]models.Message
	feed  *store.Feed
	now   func() time.Time
}

// New creates an empty store.
func New() *MessageStore {
	return &MessageStore{
		rooms: make(map[string][]models.Message),
		feed:  store.NewFeed(),
		now:   time.Now,
	}
}

// WithClock replaces the clock used for commit timestamps.
func (s *MessageStore) WithClock(now func() time.Time) *MessageStore {
	s.now = now
	return s
}

// Append commits msg with a fresh id and a timestamp strictly after the
// room's last commit.
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

	log := s.rooms[room]
	if n := len(log); n > 0 && !committed.Timestamp.After(log[n-1].Timestamp) {
		committed.Timestamp = log[n-1].Timestamp.Add(time.Nanosecond)
	}

	s.rooms[room] = append(log, committed)
	s.feed.Publish(room, s.rooms[room])

	return committed.Clone(), nil
}

// Subscribe streams snapshots of room, beginning with its current history.
func (s *MessageStore) Subscribe(ctx context.Context, room string) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.feed.Subscribe(ctx, room, models.CloneMessages(s.rooms[room])), nil
}

// Len returns the number of committed messages in room.
func (s *MessageStore) Len(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}
