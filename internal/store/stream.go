package store

import (
	"sync"

	"studycompanion/server/internal/models"
)

// Stream is a latest-wins Subscription implementation shared by the backends.
type Stream struct {
	ch      chan []models.Message
	stop    chan struct{}
	mu      sync.Mutex
	closed  bool
	err     error
	onClose func()
}

// NewStream creates an open stream. onClose, if set, runs once when the
// stream is closed or failed.
func NewStream(onClose func()) *Stream {
	return &Stream{
		ch:      make(chan []models.Message, 1),
		stop:    make(chan struct{}),
		onClose: onClose,
	}
}

// Snapshots returns the channel of ordered snapshots.
func (s *Stream) Snapshots() <-chan []models.Message {
	return s.ch
}

// Offer replaces any undelivered snapshot with snap. Offers after close are dropped.
func (s *Stream) Offer(snap []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// Fail closes the stream with a cause reported by Err.
func (s *Stream) Fail(err error) {
	s.finish(err)
}

// Close closes the stream. It is safe to call more than once.
func (s *Stream) Close() error {
	s.finish(nil)
	return nil
}

// Err returns the failure cause, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) done() <-chan struct{} {
	return s.stop
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.stop)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}
