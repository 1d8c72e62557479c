package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware extracts the user identity forwarded by the
// Gateway and attaches it to the request context for handlers.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		username := strings.TrimSpace(c.Get("X-Username"))

		if userID == "" {
			log.Printf("❌ [USER_CTX] Missing X-User-ID on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("username", username)

		return c.Next()
	}
}
