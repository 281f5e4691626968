package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/middleware"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return fiber.StatusBadRequest
	case apperrors.KindNoMatchingCategory:
		return fiber.StatusUnprocessableEntity
	case apperrors.KindPermissionDenied:
		return fiber.StatusForbidden
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err as {"error", "kind"}. Gate rejections of anonymous callers are 401 so the
// client knows signing in may help. Storage failures are logged and their cause is not
// sent to the client.
func fail(c *fiber.Ctx, err error) error {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()

	switch {
	case kind == apperrors.KindPermissionDenied && !middleware.Identity(c).Authenticated():
		status = fiber.StatusUnauthorized
	case status == fiber.StatusInternalServerError:
		middleware.Logger(c).Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg, "kind": kind})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"kind":  apperrors.KindValidation,
	})
}

// paramID reads a positive integer route parameter.
func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	return id, err == nil && id > 0
}

// parseDate parses a "YYYY-MM-DD" string. An empty string is the zero time.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}
