package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
)

var errOffline = errors.New("store unreachable")

// fakeStore commits appends into a list and lets tests push snapshots by hand.
type fakeStore struct {
	mu        sync.Mutex
	appendErr error
	subErr    error
	block     chan struct{}
	// subGate holds Subscribe until it is closed or ctx is done
	subGate  chan struct{}
	subDelay time.Duration
	appended []models.Message
	streams  map[string][]*store.Stream
}

func newFakeStore() *fakeStore {
	return &fakeStore{streams: make(map[string][]*store.Stream)}
}

func (f *fakeStore) Append(ctx context.Context, room string, msg models.Message) (models.Message, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return models.Message{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.appendErr != nil {
		return models.Message{}, f.appendErr
	}
	msg.ID = fmt.Sprintf("srv-%d", len(f.appended)+1)
	msg.Room = room
	f.appended = append(f.appended, msg)
	return msg, nil
}

func (f *fakeStore) Subscribe(ctx context.Context, room string) (store.Subscription, error) {
	if f.subGate != nil {
		select {
		case <-f.subGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.subDelay > 0 {
		time.Sleep(f.subDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subErr != nil {
		return nil, f.subErr
	}
	s := store.NewStream(nil)
	f.streams[room] = append(f.streams[room], s)
	return s, nil
}

func (f *fakeStore) push(room string, snap ...models.Message) {
	f.mu.Lock()
	streams := f.streams[room]
	f.mu.Unlock()

	if len(streams) > 0 {
		streams[len(streams)-1].Offer(snap)
	}
}

func (f *fakeStore) committed() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.appended...)
}

func (f *fakeStore) subscriptions(room string) []*store.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*store.Stream(nil), f.streams[room]...)
}

// fakeBlobs fails uploads for the configured names.
type fakeBlobs struct {
	mu      sync.Mutex
	failing map[string]bool
	gate    map[string]chan struct{}
	keys    []string
}

func newFakeBlobs(failing ...string) *fakeBlobs {
	b := &fakeBlobs{failing: make(map[string]bool), gate: make(map[string]chan struct{})}
	for _, name := range failing {
		b.failing[BlobKey(name)] = true
	}
	return b
}

func (b *fakeBlobs) Upload(ctx context.Context, key string, data []byte, mediaType string) error {
	b.mu.Lock()
	gate := b.gate[key]
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failing[key] {
		return errors.New("upload rejected")
	}
	b.keys = append(b.keys, key)
	return nil
}

func (b *fakeBlobs) URL(ctx context.Context, key string) (string, error) {
	return "https://files.test/" + key, nil
}

func (b *fakeBlobs) uploaded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.keys...)
}
