// Package disk is a name-addressed AttachmentStore on the local filesystem.
// Blobs are served back by the HTTP layer under BaseURL.
package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"studycompanion/server/internal/store"
)

// AttachmentStore writes blobs beneath Root.
type AttachmentStore struct {
	Root    string
	BaseURL string
}

// New creates a store rooted at root whose URLs start with baseURL.
func New(root, baseURL string) *AttachmentStore {
	return &AttachmentStore{
		Root:    root,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *AttachmentStore) path(key string) (string, string, error) {
	cleaned, err := store.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.Root, filepath.FromSlash(cleaned)), nil
}

// Upload writes data under key, replacing any blob with the same key.
func (s *AttachmentStore) Upload(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, full, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create upload directory: %w", err)
	}

	// Write through a temp file so readers never see a partial blob
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("save blob: %w", err)
	}
	return nil
}

// URL resolves key to its public URL. The blob must exist.
func (s *AttachmentStore) URL(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cleaned, full, err := s.path(key)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", store.ErrNotFound, cleaned)
		}
		return "", fmt.Errorf("stat blob: %w", err)
	}

	return s.BaseURL + "/" + cleaned, nil
}

// Open returns a reader for key along with its size.
func (s *AttachmentStore) Open(key string) (io.ReadCloser, int64, error) {
	cleaned, full, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", store.ErrNotFound, cleaned)
		}
		return nil, 0, fmt.Errorf("open blob: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, 0, fmt.Errorf("stat blob: %w", err)
	}
	if info.IsDir() {
		f.Close() //nolint:errcheck
		return nil, 0, fmt.Errorf("%w: %s", store.ErrNotFound, cleaned)
	}

	return f, info.Size(), nil
}

// ContentType returns the media type served for a blob name.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
