package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studycompanion/server/internal/models"
)

func TestStream_LatestWins(t *testing.T) {
	s := NewStream(nil)

	s.Offer([]models.Message{{Content: "one"}})
	s.Offer([]models.Message{{Content: "one"}, {Content: "two"}})

	snap := <-s.Snapshots()
	require.Len(t, snap, 2)
	assert.Equal(t, "two", snap[1].Content)

	select {
	case extra := <-s.Snapshots():
		t.Fatalf("stale snapshot delivered: %v", extra)
	default:
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	calls := 0
	s := NewStream(func() { calls++ })

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	s.Offer([]models.Message{{Content: "late"}})

	_, ok := <-s.Snapshots()
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.NoError(t, s.Err())
}

func TestStream_FailRecordsCause(t *testing.T) {
	s := NewStream(nil)
	s.Fail(ErrClosed)

	assert.ErrorIs(t, s.Err(), ErrClosed)
}

func TestFeed_PublishReachesRoomSubscribers(t *testing.T) {
	f := NewFeed()
	ctx := context.Background()

	a := f.Subscribe(ctx, "a", nil)
	b := f.Subscribe(ctx, "b", nil)
	<-a.Snapshots()
	<-b.Snapshots()

	f.Publish("a", []models.Message{{Content: "hello"}})

	select {
	case snap := <-a.Snapshots():
		require.Len(t, snap, 1)
	case <-time.After(time.Second):
		t.Fatal("no snapshot for a")
	}

	select {
	case snap := <-b.Snapshots():
		t.Fatalf("room b received %v", snap)
	default:
	}
}

func TestFeed_RemovesClosedStreams(t *testing.T) {
	f := NewFeed()
	ctx, cancel := context.WithCancel(context.Background())

	s1 := f.Subscribe(ctx, "r", nil)
	s2 := f.Subscribe(context.Background(), "r", nil)
	assert.Equal(t, 2, f.Subscribers("r"))

	require.NoError(t, s2.Close())
	assert.Equal(t, 1, f.Subscribers("r"))

	cancel()
	require.Eventually(t, func() bool { return f.Subscribers("r") == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s1.Err(), context.Canceled)
}

func TestFeed_Rooms(t *testing.T) {
	f := NewFeed()
	assert.Empty(t, f.Rooms())

	a := f.Subscribe(context.Background(), "a", nil)
	f.Subscribe(context.Background(), "b", nil)
	assert.ElementsMatch(t, []string{"a", "b"}, f.Rooms())

	require.NoError(t, a.Close())
	assert.Equal(t, []string{"b"}, f.Rooms())
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "chat-files/cat.png", want: "chat-files/cat.png"},
		{key: "/chat-files//notes.txt", want: "chat-files/notes.txt"},
		{key: "chat-files/../secret", wantErr: true},
		{key: "..", wantErr: true},
		{key: "", wantErr: true},
		{key: "  ", wantErr: true},
		{key: `chat-files\evil`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoomPaths(t *testing.T) {
	assert.Equal(t, "study-groups/g1/messages", GroupRoom("g1"))
	assert.Equal(t, "users/u1/tutor-chats", TutorRoom("u1"))
}
