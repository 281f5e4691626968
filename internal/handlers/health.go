// Package handlers contains the HTTP route handler functions for the archery club API.
// Each handler corresponds to one API endpoint and is responsible for reading the
// request, calling the scoring service, and writing a JSON response. No handler touches
// the database: permission decisions and data access live in internal/service.
package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// HealthCheck handles GET /health.
// With no checks it only proves the process is serving. Each named check (database,
// cache) is run with a short timeout and a failure turns the response into a 503, which
// is what load balancers and container health checks look at.
func HealthCheck(checks map[string]Check) fiber.Handler {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.StatusOK
		deps := fiber.Map{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = fiber.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}

		body := fiber.Map{"status": "ok"}
		if status != fiber.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["checks"] = deps
		}
		return c.Status(status).JSON(body)
	}
}
