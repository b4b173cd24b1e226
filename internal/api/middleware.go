package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"platform-backend/internal/auth"
)

// AuthMiddleware validates a Bearer JWT and attaches the Principal to the
// request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return UnauthorizedError("Invalid auth header format")
		}

		claims, err := auth.ParseAccessToken(parts[1], secret)
		if err != nil {
			return UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &auth.Principal{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})
		return c.Next()
	}
}

// RequireAdmin checks the authenticated caller has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*auth.Principal)
		if !ok || user == nil {
			return UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// clientID reads the caller identity header used for rate accounting.
func clientID(c *fiber.Ctx) (string, error) {
	id := c.Get("x-client-id")
	if id == "" {
		return "", BadRequestError("x-client-id header is required")
	}
	return id, nil
}
