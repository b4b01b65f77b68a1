package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"studycompanion/server/internal/chat"
	"studycompanion/server/internal/store"
	"studycompanion/server/internal/store/disk"
)

// BlobReader opens stored blobs for download
type BlobReader interface {
	Open(key string) (io.ReadCloser, int64, error)
}

type UploadHandler struct {
	uploader *chat.Uploader
	blobs    BlobReader
	maxBytes int
}

func NewUploadHandler(uploader *chat.Uploader, blobs BlobReader, maxBytes int) *UploadHandler {
	return &UploadHandler{uploader: uploader, blobs: blobs, maxBytes: maxBytes}
}

// UploadFiles uploads every "files" part and returns the ones that succeeded
func (h *UploadHandler) UploadFiles(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		return fail(c, fiber.StatusBadRequest, "No files uploaded")
	}

	submitted := len(form.File["files"])
	attachments := h.uploader.UploadAll(c.UserContext(), readFiles(form, h.maxBytes))

	return ok(c, fiber.StatusOK, fiber.Map{
		"attachments": attachments,
		"failed":      submitted - len(attachments),
	})
}

// GetFile serves an uploaded blob
func (h *UploadHandler) GetFile(c *fiber.Ctx) error {
	key := c.Params("*")

	rc, size, err := h.blobs.Open(key)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidKey) {
		return fail(c, fiber.StatusNotFound, "File not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to read file")
	}

	c.Set(fiber.HeaderContentType, disk.ContentType(key))
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.SendStream(rc, int(size))
}
