package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"studycompanion/server/internal/metrics"
	"studycompanion/server/internal/models"
	"studycompanion/server/internal/store"
)

const blobPrefix = "chat-files/"

// File is one user-selected file waiting to be uploaded.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Uploader uploads a batch of files before a message is composed.
type Uploader struct {
	store  store.AttachmentStore
	limit  int
	logger zerolog.Logger
}

// NewUploader returns a coordinator running at most concurrency uploads at
// once. concurrency <= 0 means unbounded.
func NewUploader(as store.AttachmentStore, concurrency int, logger zerolog.Logger) *Uploader {
	return &Uploader{
		store:  as,
		limit:  concurrency,
		logger: logger.With().Str("component", "uploader").Logger(),
	}
}

// UploadAll uploads every file concurrently, waits for all of them, and
// returns the attachments that succeeded in submission order.
func (u *Uploader) UploadAll(ctx context.Context, files []File) []models.Attachment {
	results := make([]*models.Attachment, len(files))

	var g errgroup.Group
	if u.limit > 0 {
		g.SetLimit(u.limit)
	}

	for i, f := range files {
		g.Go(func() error {
			att, err := u.upload(ctx, f)
			metrics.AttachmentUploads.WithLabelValues(metrics.Result(err)).Inc()
			if err != nil {
				u.logger.Warn().Err(err).Str("file", f.Name).Msg("upload failed, dropping attachment")
				return nil
			}
			results[i] = &att
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Attachment, 0, len(files))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (u *Uploader) upload(ctx context.Context, f File) (models.Attachment, error) {
	key := BlobKey(f.Name)
	if err := u.store.Upload(ctx, key, f.Data, f.MediaType); err != nil {
		return models.Attachment{}, fmt.Errorf("upload %s: %w", key, err)
	}

	url, err := u.store.URL(ctx, key)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("resolve %s: %w", key, err)
	}

	return models.Attachment{Kind: KindOf(f.MediaType), URL: url, Name: f.Name}, nil
}

// BlobKey is the store key a file is uploaded under. Names are not
// deduplicated.
func BlobKey(name string) string {
	return blobPrefix + name
}

// KindOf classifies an attachment by its declared media type.
func KindOf(mediaType string) models.AttachmentKind {
	if strings.HasPrefix(mediaType, "image/") {
		return models.AttachmentImage
	}
	return models.AttachmentFile
}
