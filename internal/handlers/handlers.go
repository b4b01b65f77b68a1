package handlers

import (
	"context"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"studycompanion/server/internal/chat"
	"studycompanion/server/internal/models"
)

// UserStore is the subset of the user repository the handlers use
type UserStore interface {
	Create(ctx context.Context, email, name, passwordHash string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// GroupStore is the subset of the group repository the handlers use
type GroupStore interface {
	Create(ctx context.Context, name string, subject *string, createdBy string) (*models.StudyGroup, error)
	ListForUser(ctx context.Context, userID string) ([]models.StudyGroup, error)
	Get(ctx context.Context, groupID string) (*models.StudyGroupWithMembers, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	Join(ctx context.Context, groupID, userID string) error
	Leave(ctx context.Context, groupID, userID string) error
}

// TokenIssuer signs session tokens
type TokenIssuer interface {
	Generate(user *models.User) (string, error)
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func ok(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// readFiles loads the "files" parts of a multipart form. Files over maxBytes
// are dropped like any other failed upload.
func readFiles(form *multipart.Form, maxBytes int) []chat.File {
	if form == nil {
		return nil
	}

	headers := form.File["files"]
	files := make([]chat.File, 0, len(headers))
	for _, fh := range headers {
		if maxBytes > 0 && fh.Size > int64(maxBytes) {
			log.Warn().Str("file", fh.Filename).Int64("size", fh.Size).Msg("file exceeds upload limit, dropping")
			continue
		}

		data, err := readPart(fh)
		if err != nil {
			log.Warn().Err(err).Str("file", fh.Filename).Msg("failed to read upload, dropping")
			continue
		}

		files = append(files, chat.File{
			Name:      fh.Filename,
			MediaType: fh.Header.Get(fiber.HeaderContentType),
			Data:      data,
		})
	}
	return files
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
