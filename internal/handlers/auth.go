package handlers

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"studycompanion/server/internal/identity"
	"studycompanion/server/internal/middleware"
	"studycompanion/server/internal/repository"
)

const minPasswordLength = 8

// RegisterRequest represents registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthHandler struct {
	users        UserStore
	tokens       TokenIssuer
	tokenTTL     time.Duration
	secureCookie bool
}

func NewAuthHandler(users UserStore, tokens TokenIssuer, tokenTTL time.Duration, secureCookie bool) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, tokenTTL: tokenTTL, secureCookie: secureCookie}
}

// Register creates an account and starts a session
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return fail(c, fiber.StatusBadRequest, "Email, password, and name are required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid email address")
	}
	if len(req.Password) < minPasswordLength {
		return fail(c, fiber.StatusBadRequest, "Password must be at least 8 characters")
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user, err := h.users.Create(c.UserContext(), req.Email, req.Name, hash)
	if errors.Is(err, repository.ErrUserExists) {
		return fail(c, fiber.StatusConflict, "Email already registered")
	}
	if err != nil {
		log.Error().Err(err).Msg("register failed")
		return fail(c, fiber.StatusInternalServerError, "Failed to create user")
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	h.setToken(c, token, int(h.tokenTTL.Seconds()))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user":  user.ToResponse(),
			"token": token,
		},
	})
}

// Login verifies credentials and starts a session
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return fail(c, fiber.StatusBadRequest, "Email and password are required")
	}

	user, err := h.users.GetByEmail(c.UserContext(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		log.Error().Err(err).Msg("login lookup failed")
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}

	if !identity.CheckPassword(user.Password, req.Password) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	h.setToken(c, token, int(h.tokenTTL.Seconds()))

	return ok(c, fiber.StatusOK, fiber.Map{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Me returns the authenticated user
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.users.GetByID(c.UserContext(), middleware.GetUserID(c))
	if errors.Is(err, repository.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}

	return ok(c, fiber.StatusOK, user.ToResponse())
}

// Logout clears the session cookie
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.setToken(c, "", -1)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}

func (h *AuthHandler) setToken(c *fiber.Ctx, token string, maxAge int) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		HTTPOnly: true,
		Secure:   h.secureCookie,
		SameSite: "Lax",
		MaxAge:   maxAge,
	})
}
