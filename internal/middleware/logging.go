package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/trentd187/archery-club/internal/logging"
)

const loggerKey = "logger"

// RequestLogger stores a logger tagged with the request id in c.Locals. It must run after
// requestid.New so the id exists.
func RequestLogger(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		c.Locals(loggerKey, base.With("request_id", rid))
		return c.Next()
	}
}

// Logger returns the request's logger, or a discarding one outside RequestLogger.
func Logger(c *fiber.Ctx) *slog.Logger {
	if l, ok := c.Locals(loggerKey).(*slog.Logger); ok {
		return l
	}
	return logging.Discard()
}
