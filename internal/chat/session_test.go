package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
	"studycompanion/server/internal/store/memory"
)

var (
	ana = models.Identity{ID: "ana", DisplayName: "Ana", Email: "ana@example.com"}
	ben = models.Identity{ID: "ben", DisplayName: "Ben", Email: "ben@example.com"}
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestSession(ms store.MessageStore, mutate ...func(*Config)) *Session {
	cfg := Config{Store: ms, Logger: zerolog.Nop()}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewSession(cfg)
}

func contents(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestSession_BindRequiresViewer(t *testing.T) {
	s := newTestSession(newFakeStore())
	assert.ErrorIs(t, s.Bind(context.Background(), "g1", models.Identity{}), ErrNoViewer)
	assert.False(t, s.Bound())
}

func TestSession_SendBeforeBind(t *testing.T) {
	s := newTestSession(newFakeStore())
	_, err := s.Send("hi", nil)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestSession_EmptySendIsNoop(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := s.Send(content, nil)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}

	s.Wait()
	assert.Empty(t, s.Messages())
	assert.Empty(t, fs.committed())
}

func TestSession_AttachmentOnlySend(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	msg, err := s.Send("", []models.Attachment{{Kind: models.AttachmentFile, URL: "u", Name: "notes.txt"}})
	require.NoError(t, err)
	assert.Empty(t, msg.Content)
	assert.Len(t, msg.Attachments, 1)
}

func TestSession_OptimisticEcho(t *testing.T) {
	fs := newFakeStore()
	fs.block = make(chan struct{})
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	for i, content := range []string{"one", "two", "three", "four"} {
		before := len(s.Messages())

		msg, err := s.Send(content, nil)
		require.NoError(t, err)

		visible := s.Messages()
		require.Len(t, visible, before+1, "send %d", i)
		last := visible[len(visible)-1]
		assert.Equal(t, content, last.Content)
		assert.Equal(t, models.StatusPending, last.Status)
		assert.Equal(t, msg.ID, last.ID)
		assert.Equal(t, msg.ID, msg.ClientID)
		assert.Contains(t, msg.ID, "local-")
		assert.Equal(t, ana.AsSender(), last.Sender)
	}

	close(fs.block)
	s.Wait()
	assert.Len(t, fs.committed(), 4)
}

func TestSession_SnapshotReplacesCommittedList(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	room := store.GroupRoom("g1")
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first := []models.Message{
		{ID: "m1", Content: "a", Sender: ben.AsSender(), Timestamp: t0},
		{ID: "m2", Content: "b", Sender: ana.AsSender(), Timestamp: t0.Add(time.Second)},
	}
	fs.push(room, first...)
	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, waitFor, tick)
	assert.Equal(t, first, s.Messages())

	second := []models.Message{
		{ID: "m0", Content: "z", Sender: ben.AsSender(), Timestamp: t0.Add(-time.Second)},
		first[0],
		first[1],
	}
	fs.push(room, second...)
	require.Eventually(t, func() bool { return len(s.Messages()) == 3 }, waitFor, tick)
	assert.Equal(t, second, s.Messages())

	fs.push(room)
	require.Eventually(t, func() bool { return len(s.Messages()) == 0 }, waitFor, tick)
}

func TestSession_PendingStaysAfterSnapshot(t *testing.T) {
	fs := newFakeStore()
	fs.block = make(chan struct{})
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	_, err := s.Send("mine", nil)
	require.NoError(t, err)

	room := store.GroupRoom("g1")
	fs.push(room, models.Message{ID: "m1", Content: "theirs", Sender: ben.AsSender()})

	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"theirs", "mine"}, contents(s.Messages()))

	close(fs.block)
	s.Wait()
}

func TestSession_OfflineSendRemainsVisible(t *testing.T) {
	fs := newFakeStore()
	fs.appendErr = errOffline
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "R", ana))
	defer s.Unbind()

	_, err := s.Send("hello", nil)
	require.NoError(t, err, "store failures are not surfaced to the caller")
	s.Wait()

	visible := s.Messages()
	require.Len(t, visible, 1)
	assert.Equal(t, "hello", visible[0].Content)
	assert.Equal(t, models.StatusFailed, visible[0].Status)

	fs.push(store.GroupRoom("R"), models.Message{ID: "m1", Content: "from ben", Sender: ben.AsSender()})

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 2 && msgs[0].ID == "m1"
	}, waitFor, tick)

	visible = s.Messages()
	assert.Equal(t, []string{"from ben", "hello"}, contents(visible))
	assert.Equal(t, models.StatusFailed, visible[1].Status)
	assert.Empty(t, fs.committed())
}

func TestSession_AckTransitionsOnce(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	sent, err := s.Send("hello", nil)
	require.NoError(t, err)
	s.Wait()

	visible := s.Messages()
	require.Len(t, visible, 1)
	assert.Equal(t, "srv-1", visible[0].ID)
	assert.Equal(t, sent.ClientID, visible[0].ClientID)
	assert.Equal(t, models.StatusSent, visible[0].Status)

	committed := fs.committed()
	require.Len(t, committed, 1)
	assert.Empty(t, committed[0].Status)
	assert.Equal(t, sent.ClientID, committed[0].ClientID)

	fs.push(store.GroupRoom("g1"), committed...)
	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].Status == ""
	}, waitFor, tick)
}

func TestSession_MemoryStoreRoundTrip(t *testing.T) {
	ms := memory.New()
	ctx := context.Background()

	alice := newTestSession(ms)
	bob := newTestSession(ms)
	require.NoError(t, alice.Bind(ctx, "g1", ana))
	require.NoError(t, bob.Bind(ctx, "g1", ben))
	defer alice.Unbind()
	defer bob.Unbind()

	sent, err := alice.Send("hi all", nil)
	require.NoError(t, err)
	alice.Wait()

	for _, s := range []*Session{alice, bob} {
		require.Eventually(t, func() bool {
			msgs := s.Messages()
			return len(msgs) == 1 && msgs[0].Status == ""
		}, waitFor, tick)

		got := s.Messages()[0]
		assert.NotEqual(t, sent.ID, got.ID)
		assert.Equal(t, sent.ClientID, got.ClientID)
		assert.Equal(t, "hi all", got.Content)
		assert.Equal(t, ana.AsSender(), got.Sender)
	}
}

func TestSession_RebindReplacesSubscription(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs)
	ctx := context.Background()

	require.NoError(t, s.Bind(ctx, "a", ana))
	fs.push(store.GroupRoom("a"), models.Message{ID: "a1", Content: "in a"})
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, waitFor, tick)

	require.NoError(t, s.Bind(ctx, "b", ana))
	assert.Empty(t, s.Messages())
	assert.Equal(t, "b", s.RoomID())

	old := fs.subscriptions(store.GroupRoom("a"))
	require.Len(t, old, 1)
	_, open := <-old[0].Snapshots()
	assert.False(t, open, "previous subscription is closed")

	fs.push(store.GroupRoom("b"), models.Message{ID: "b1", Content: "in b"})
	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].ID == "b1"
	}, waitFor, tick)

	s.Unbind()
}

func TestSession_UnbindIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))

	s.Unbind()
	s.Unbind()

	assert.False(t, s.Bound())
	_, err := s.Send("late", nil)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestSession_UnbindDoesNotCancelSends(t *testing.T) {
	fs := newFakeStore()
	fs.block = make(chan struct{})
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))

	_, err := s.Send("in flight", nil)
	require.NoError(t, err)
	s.Unbind()

	close(fs.block)
	s.Wait()
	assert.Len(t, fs.committed(), 1)
	assert.Empty(t, s.Messages())
}

func TestSession_SubscribeFailure(t *testing.T) {
	fs := newFakeStore()
	fs.subErr = errOffline
	s := newTestSession(fs)

	err := s.Bind(context.Background(), "g1", ana)
	require.ErrorIs(t, err, errOffline)
	assert.True(t, s.Bound())
	assert.Empty(t, s.Messages())

	_, err = s.Send("still echoes", nil)
	require.NoError(t, err)
	assert.Len(t, s.Messages(), 1)

	s.Wait()
	s.Unbind()
}

func TestSession_SendKeepsContentAsGiven(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs)
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	content := "  def f():\n      return 1\n"
	msg, err := s.Send(content, nil)
	require.NoError(t, err)
	assert.Equal(t, content, msg.Content)

	s.Wait()
	committed := fs.committed()
	require.Len(t, committed, 1)
	assert.Equal(t, content, committed[0].Content)
}

func TestSession_SubscribeTimeout(t *testing.T) {
	fs := newFakeStore()
	fs.subGate = make(chan struct{})
	defer close(fs.subGate)

	s := newTestSession(fs, func(c *Config) { c.SubscribeTimeout = 20 * time.Millisecond })

	done := make(chan error, 1)
	go func() { done <- s.Bind(context.Background(), "g1", ana) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(waitFor):
		t.Fatal("bind did not give up on a stalled subscription")
	}

	assert.True(t, s.Bound())
	assert.Empty(t, s.Messages())
	s.Unbind()
}

func TestSession_SubscriptionOutlivesSubscribeTimeout(t *testing.T) {
	fs := newFakeStore()
	s := newTestSession(fs, func(c *Config) { c.SubscribeTimeout = 10 * time.Millisecond })
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	time.Sleep(50 * time.Millisecond)

	fs.push(store.GroupRoom("g1"), models.Message{ID: "m1", Content: "later"})
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, waitFor, tick)
}

func TestSession_ConcurrentBindKeepsOneSubscription(t *testing.T) {
	fs := newFakeStore()
	fs.subDelay = 10 * time.Millisecond
	s := newTestSession(fs)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Bind(context.Background(), "g1", ana))
		}()
	}
	wg.Wait()

	subs := fs.subscriptions(store.GroupRoom("g1"))
	require.Len(t, subs, 4)

	open := 0
	for _, sub := range subs {
		select {
		case <-sub.Snapshots():
		default:
			open++
		}
	}
	assert.Equal(t, 1, open, "only the last binding stays subscribed")

	s.Unbind()
	for _, sub := range subs {
		select {
		case _, ok := <-sub.Snapshots():
			assert.False(t, ok)
		case <-time.After(waitFor):
			t.Fatal("subscription left open after unbind")
		}
	}
}

func TestSession_OnChangeSeesLatestState(t *testing.T) {
	fs := newFakeStore()

	var mu sync.Mutex
	var seen [][]models.Message
	s := newTestSession(fs, func(c *Config) {
		c.OnChange = func(msgs []models.Message) {
			mu.Lock()
			seen = append(seen, msgs)
			mu.Unlock()
		}
	})
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	_, err := s.Send("hello", nil)
	require.NoError(t, err)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, s.Messages(), seen[len(seen)-1])
}

func TestSession_ContextCarriedThrough(t *testing.T) {
	fs := newFakeStore()
	docCtx := &models.MessageContext{DocumentID: "doc-7", Subject: "biology"}
	s := newTestSession(fs, func(c *Config) {
		c.Context = docCtx
		c.RoomPath = store.TutorRoom
	})
	require.NoError(t, s.Bind(context.Background(), "ana", ana))
	defer s.Unbind()

	msg, err := s.Send("what is mitosis?", nil)
	require.NoError(t, err)
	s.Wait()

	require.NotNil(t, msg.Context)
	assert.Equal(t, *docCtx, *msg.Context)
	assert.NotSame(t, docCtx, msg.Context)

	committed := fs.committed()
	require.Len(t, committed, 1)
	assert.Equal(t, "users/ana/tutor-chats", committed[0].Room)
	assert.Equal(t, "doc-7", committed[0].Context.DocumentID)
}

func TestSession_TutorReplyFollowsQuestion(t *testing.T) {
	ms := memory.New()
	s := newTestSession(ms, func(c *Config) {
		c.Responder = CannedResponder{}
		c.RoomPath = store.TutorRoom
		c.Context = &models.MessageContext{DocumentID: "doc-1"}
	})
	require.NoError(t, s.Bind(context.Background(), ana.ID, ana))
	defer s.Unbind()

	_, err := s.Send("explain photosynthesis", nil)
	require.NoError(t, err)
	s.Wait()

	require.Eventually(t, func() bool { return len(s.Messages()) == 2 }, waitFor, tick)

	msgs := s.Messages()
	assert.Equal(t, ana.ID, msgs[0].Sender.ID)
	assert.Equal(t, TutorSender, msgs[1].Sender)
	assert.Equal(t, simulatedReply, msgs[1].Content)
	require.NotNil(t, msgs[1].Context)
	assert.Equal(t, "doc-1", msgs[1].Context.DocumentID)
	assert.True(t, msgs[1].Timestamp.After(msgs[0].Timestamp))
}

func TestSession_NoTutorReplyWhenQuestionFails(t *testing.T) {
	fs := newFakeStore()
	fs.appendErr = errOffline

	called := false
	s := newTestSession(fs, func(c *Config) {
		c.Responder = ResponderFunc(func(ctx context.Context, q models.Message) (models.Message, error) {
			called = true
			return models.Message{Content: "reply"}, nil
		})
	})
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	_, err := s.Send("question", nil)
	require.NoError(t, err)
	s.Wait()

	assert.False(t, called)
}

func TestSession_SendFiles(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		files     []File
		failing   []string
		wantErr   error
		wantNames []string
	}{
		{
			name:    "k of n succeed",
			content: "see attached",
			files: []File{
				{Name: "a.png", MediaType: "image/png"},
				{Name: "b.pdf", MediaType: "application/pdf"},
				{Name: "c.txt", MediaType: "text/plain"},
			},
			failing:   []string{"b.pdf"},
			wantNames: []string{"a.png", "c.txt"},
		},
		{
			name:      "all fail with content",
			content:   "text survives",
			files:     []File{{Name: "x.bin"}},
			failing:   []string{"x.bin"},
			wantNames: []string{},
		},
		{
			name:    "all fail without content",
			files:   []File{{Name: "x.bin"}, {Name: "y.bin"}},
			failing: []string{"x.bin", "y.bin"},
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "nothing at all",
			wantErr: ErrEmptyMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeStore()
			uploader := NewUploader(newFakeBlobs(tt.failing...), 2, zerolog.Nop())
			s := newTestSession(fs, func(c *Config) { c.Uploader = uploader })
			require.NoError(t, s.Bind(context.Background(), "g1", ana))
			defer s.Unbind()

			msg, err := s.SendFiles(context.Background(), tt.content, tt.files)
			s.Wait()

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, s.Messages())
				assert.Empty(t, fs.committed())
				return
			}

			require.NoError(t, err)
			names := []string{}
			for _, a := range msg.Attachments {
				names = append(names, a.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Len(t, fs.committed(), 1)
		})
	}
}

func TestSession_SendFilesWithoutUploader(t *testing.T) {
	s := newTestSession(newFakeStore())
	require.NoError(t, s.Bind(context.Background(), "g1", ana))
	defer s.Unbind()

	_, err := s.SendFiles(context.Background(), "hi", []File{{Name: "a.txt"}})
	assert.ErrorIs(t, err, ErrNoUploader)
}
