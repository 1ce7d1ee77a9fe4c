package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const userIDKey = "user_id"

// RequireUser extracts the caller identity from the X-User-ID header set by
// the API gateway. Requests without it are rejected before any handler runs.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// GetCurrentUserID returns the identity stored by RequireUser.
func GetCurrentUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals(userIDKey).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}
