package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimiter limits requests per user, or per IP before authentication.
func RateLimiter(max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := GetUserID(c); id != "" {
				return id
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Too many requests, please try again later",
			})
		},
	})
}

// AuthRateLimiter guards register and login.
func AuthRateLimiter() fiber.Handler {
	return RateLimiter(5, 15*time.Minute)
}

// MessageRateLimiter guards message composition.
func MessageRateLimiter() fiber.Handler {
	return RateLimiter(30, time.Minute)
}

func UploadRateLimiter() fiber.Handler {
	return RateLimiter(10, 5*time.Minute)
}
