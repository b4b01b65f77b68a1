package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything that can report it is reachable, e.g. a pgx pool
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db           Pinger
	messageStore string
}

func NewHealthHandler(db Pinger, messageStore string) *HealthHandler {
	return &HealthHandler{db: db, messageStore: messageStore}
}

// Health reports liveness
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "ok",
		"message":      "Study Companion API is running",
		"messageStore": h.messageStore,
	})
}

// Ready reports whether the database answers
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db == nil {
		return c.JSON(fiber.Map{"status": "ready"})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"error":  "database unreachable",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}
