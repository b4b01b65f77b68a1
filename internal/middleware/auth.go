package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"studycompanion/server/internal/models"
)

// IdentityKey is the Locals key the authenticated identity is stored under.
const IdentityKey = "identity"

// TokenCookie is the cookie the session token is stored in.
const TokenCookie = "token"

// Identifier resolves a session token to the viewer identity.
type Identifier interface {
	Identify(token string) (models.Identity, error)
}

// Auth validates the session token from the cookie or a bearer header.
func Auth(idp Identifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := tokenFrom(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - No token provided",
			})
		}

		id, err := idp.Identify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - Invalid token",
			})
		}

		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

// GetIdentity returns the identity stored by Auth.
func GetIdentity(c *fiber.Ctx) models.Identity {
	id, _ := c.Locals(IdentityKey).(models.Identity)
	return id
}

// GetUserID gets the authenticated user id, empty when unauthenticated.
func GetUserID(c *fiber.Ctx) string {
	return GetIdentity(c).ID
}

func tokenFrom(c *fiber.Ctx) string {
	if token := c.Cookies(TokenCookie); token != "" {
		return token
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	// browsers cannot set headers on websocket upgrades
	return c.Query("token")
}
