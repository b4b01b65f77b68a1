package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studycompanion/server/internal/models"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		mediaType string
		want      models.AttachmentKind
	}{
		{"image/png", models.AttachmentImage},
		{"image/svg+xml", models.AttachmentImage},
		{"text/plain", models.AttachmentFile},
		{"application/pdf", models.AttachmentFile},
		{"", models.AttachmentFile},
		{"IMAGE/PNG", models.AttachmentFile},
		{"video/image", models.AttachmentFile},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.mediaType))
		})
	}
}

func TestUploadAll_PreservesSubmissionOrder(t *testing.T) {
	blobs := newFakeBlobs()
	gate := make(chan struct{})
	blobs.gate[BlobKey("cat.png")] = gate

	u := NewUploader(blobs, 0, zerolog.Nop())

	done := make(chan []models.Attachment)
	go func() {
		done <- u.UploadAll(context.Background(), []File{
			{Name: "cat.png", MediaType: "image/png", Data: []byte("png")},
			{Name: "notes.txt", MediaType: "text/plain", Data: []byte("notes")},
		})
	}()

	// notes.txt finishes first while cat.png is held back
	require.Eventually(t, func() bool { return len(blobs.uploaded()) == 1 }, waitFor, tick)
	close(gate)

	got := <-done
	assert.Equal(t, []models.Attachment{
		{Kind: models.AttachmentImage, URL: "https://files.test/chat-files/cat.png", Name: "cat.png"},
		{Kind: models.AttachmentFile, URL: "https://files.test/chat-files/notes.txt", Name: "notes.txt"},
	}, got)
	assert.Equal(t, []string{"chat-files/notes.txt", "chat-files/cat.png"}, blobs.uploaded())
}

func TestUploadAll_DropsFailures(t *testing.T) {
	blobs := newFakeBlobs("two.pdf", "four.doc")
	u := NewUploader(blobs, 2, zerolog.Nop())

	got := u.UploadAll(context.Background(), []File{
		{Name: "one.png", MediaType: "image/png"},
		{Name: "two.pdf", MediaType: "application/pdf"},
		{Name: "three.txt", MediaType: "text/plain"},
		{Name: "four.doc", MediaType: "application/msword"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "one.png", got[0].Name)
	assert.Equal(t, "three.txt", got[1].Name)
}

func TestUploadAll_DuplicateNamesNotDeduplicated(t *testing.T) {
	blobs := newFakeBlobs()
	u := NewUploader(blobs, 1, zerolog.Nop())

	got := u.UploadAll(context.Background(), []File{
		{Name: "scan.jpg", MediaType: "image/jpeg", Data: []byte("v1")},
		{Name: "scan.jpg", MediaType: "image/jpeg", Data: []byte("v2")},
	})

	require.Len(t, got, 2)
	assert.Equal(t, got[0].URL, got[1].URL)
	assert.Len(t, blobs.uploaded(), 2)
}

func TestUploadAll_Empty(t *testing.T) {
	u := NewUploader(newFakeBlobs(), 4, zerolog.Nop())
	assert.Empty(t, u.UploadAll(context.Background(), nil))
}
