package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"studycompanion/server/internal/middleware"
	"studycompanion/server/internal/repository"
)

// CreateGroupRequest represents create group request body
type CreateGroupRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject,omitempty"`
}

type GroupHandler struct {
	groups GroupStore
}

func NewGroupHandler(groups GroupStore) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// Create creates a study group owned by the caller
func (h *GroupHandler) Create(c *fiber.Ctx) error {
	var req CreateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "Group name is required")
	}

	var subject *string
	if s := strings.TrimSpace(req.Subject); s != "" {
		subject = &s
	}

	group, err := h.groups.Create(c.UserContext(), req.Name, subject, middleware.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Msg("create group failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to create group")
	}

	return ok(c, fiber.StatusCreated, group)
}

// List returns the caller's groups
func (h *GroupHandler) List(c *fiber.Ctx) error {
	groups, err := h.groups.ListForUser(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch groups")
	}
	return ok(c, fiber.StatusOK, groups)
}

// Get returns a group with members. Only members may see it.
func (h *GroupHandler) Get(c *fiber.Ctx) error {
	groupID := c.Params("groupId")

	group, err := h.groups.Get(c.UserContext(), groupID)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Group not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch group")
	}

	userID := middleware.GetUserID(c)
	for _, m := range group.Members {
		if m.ID == userID {
			return ok(c, fiber.StatusOK, group)
		}
	}
	return fail(c, fiber.StatusForbidden, "You are not a member of this group")
}

func (h *GroupHandler) Join(c *fiber.Ctx) error {
	err := h.groups.Join(c.UserContext(), c.Params("groupId"), middleware.GetUserID(c))
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Group not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to join group")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Joined group",
	})
}

func (h *GroupHandler) Leave(c *fiber.Ctx) error {
	if err := h.groups.Leave(c.UserContext(), c.Params("groupId"), middleware.GetUserID(c)); err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to leave group")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Left group",
	})
}

// RequireMember rejects callers that are not members of :groupId
func (h *GroupHandler) RequireMember(c *fiber.Ctx) error {
	member, err := h.groups.IsMember(c.UserContext(), c.Params("groupId"), middleware.GetUserID(c))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to check membership")
	}
	if !member {
		return fail(c, fiber.StatusForbidden, "You are not a member of this group")
	}
	return c.Next()
}
