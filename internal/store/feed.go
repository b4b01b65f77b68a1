package store

import (
	"context"
	"sync"

	"studycompanion/server/internal/models"
)

// Feed fans room snapshots out to in-process subscribers. Backends without a
// native change stream (memory, pebble) publish through it after each append.
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[*Stream]struct{}
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[*Stream]struct{})}
}

// Subscribe registers a stream for room and seeds it with initial. The stream
// is removed when ctx is done or it is closed.
func (f *Feed) Subscribe(ctx context.Context, room string, initial []models.Message) *Stream {
	var stream *Stream
	stream = NewStream(func() { f.remove(room, stream) })

	f.mu.Lock()
	if f.subs[room] == nil {
		f.subs[room] = make(map[*Stream]struct{})
	}
	f.subs[room][stream] = struct{}{}
	stream.Offer(initial)
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			stream.Fail(ctx.Err())
		case <-stream.done():
		}
	}()

	return stream
}

// Publish delivers snap to every subscriber of room. Callers must publish
// snapshots for a room in commit order.
func (f *Feed) Publish(room string, snap []models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for stream := range f.subs[room] {
		stream.Offer(models.CloneMessages(snap))
	}
}

// Subscribers returns the number of open streams for room.
func (f *Feed) Subscribers(room string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[room])
}

// Rooms returns the rooms that have at least one open stream.
func (f *Feed) Rooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	rooms := make([]string, 0, len(f.subs))
	for room := range f.subs {
		rooms = append(rooms, room)
	}
	return rooms
}

func (f *Feed) remove(room string, stream *Stream) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if subs, ok := f.subs[room]; ok {
		delete(subs, stream)
		if len(subs) == 0 {
			delete(f.subs, room)
		}
	}
}
