package middleware

import (
	"github.com/gofiber/fiber/v2"

	"driveingest/internal/pkg/jwtutil"
)

// OptionalAuth resolves a bearer token into "userID" on c.Locals when
// present and valid, grounded on the teacher's Optional() auth middleware.
// Unlike the teacher's Protected()/RequireRole(), a missing or invalid
// token is never rejected here: spec §6's Ingest endpoint treats the owning
// user as optional metadata, not an authorization gate.
func OptionalAuth(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := jwtutil.ParseUserID(c.Get("Authorization"), jwtSecret)
		if err == nil {
			c.Locals("userID", userID)
		}
		return c.Next()
	}
}
