// Package store defines the external collaborators the chat core talks to:
// an ordered, append-only message log per room and a name-addressed blob store.
package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"studycompanion/server/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidKey = errors.New("invalid key")
	ErrClosed     = errors.New("subscription closed")
)

// MessageStore is an ordered, append-only log of messages keyed by room path.
type MessageStore interface {
	// Append commits msg to the room and returns the committed form with the
	// store-assigned id and timestamp.
	Append(ctx context.Context, room string, msg models.Message) (models.Message, error)

	// Subscribe streams full snapshots of the room ordered by ascending
	// timestamp, starting with the current history. The subscription ends
	// when ctx is done or Close is called.
	Subscribe(ctx context.Context, room string) (Subscription, error)
}

// Subscription delivers ordered room snapshots. Only the latest undelivered
// snapshot is kept; a slow reader skips intermediate ones.
type Subscription interface {
	Snapshots() <-chan []models.Message
	// Err reports why the snapshot channel was closed, nil after a normal Close.
	Err() error
	Close() error
}

// AttachmentStore uploads blobs under a key and resolves them to URLs.
type AttachmentStore interface {
	Upload(ctx context.Context, key string, data []byte, mediaType string) error
	URL(ctx context.Context, key string) (string, error)
}

// Snapshot returns the current contents of a room by taking the first
// snapshot of a short-lived subscription.
func Snapshot(ctx context.Context, ms MessageStore, room string) ([]models.Message, error) {
	sub, err := ms.Subscribe(ctx, room)
	if err != nil {
		return nil, err
	}
	defer sub.Close() //nolint:errcheck

	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			if err := sub.Err(); err != nil {
				return nil, err
			}
			return nil, ErrClosed
		}
		return snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CleanKey normalizes a blob key and rejects keys escaping the store root.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" || strings.Contains(key, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// GroupRoom returns the store path of a study group's message log.
func GroupRoom(groupID string) string {
	return "study-groups/" + groupID + "/messages"
}

// TutorRoom returns the store path of a user's private tutor conversation.
func TutorRoom(userID string) string {
	return "users/" + userID + "/tutor-chats"
}
