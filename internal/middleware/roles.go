package middleware

// roles.go: route-level role requirements.
// The access gate in internal/access makes the real decision inside each operation; these
// checks only stop requests that could never succeed before their bodies are parsed.

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/archery-club/internal/access"
	"github.com/trentd187/archery-club/internal/apperrors"
)

// RequireRole returns a middleware handler that allows only callers whose role is one of
// roles. Anonymous callers get 401 so a client knows to sign in; signed-in callers with the
// wrong role get 403.
//
//	api.Post("/rounds", middleware.RequireRole(access.RoleRecorder), handlers.CreateRound(svc))
//
// RequireRole must be used AFTER Auth, which stores the identity it reads.
func RequireRole(roles ...access.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := Identity(c)
		for _, role := range roles {
			if id.Role == role {
				return c.Next()
			}
		}
		if !id.Authenticated() {
			return unauthorized(c, "sign in required")
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient permissions",
			"kind":  apperrors.KindPermissionDenied,
		})
	}
}

// RequireAuth allows any signed-in caller.
func RequireAuth() fiber.Handler {
	return RequireRole(access.RoleArcher, access.RoleRecorder)
}
