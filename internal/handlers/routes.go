package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/archery-club/internal/access"
	"github.com/trentd187/archery-club/internal/live"
	"github.com/trentd187/archery-club/internal/middleware"
	"github.com/trentd187/archery-club/internal/service"
)

// Register mounts the /api/v1 routes on r. Callers must have run middleware.Auth first.
// Recorder-only routes are rejected by RequireRole before the service runs its own check.
func Register(r fiber.Router, svc *service.Service, hub *live.Hub) {
	api := r.Group("/api/v1")
	recorder := middleware.RequireRole(access.RoleRecorder)

	api.Get("/rounds", GetRounds(svc))
	api.Get("/rounds/:id", GetRound(svc))
	api.Post("/rounds", recorder, CreateRound(svc))

	api.Get("/divisions", GetDivisions(svc))
	api.Patch("/divisions/:id", recorder, UpdateDivision(svc))
	api.Post("/age-classes", recorder, CreateAgeClass(svc))
	api.Post("/categories", recorder, CreateCategory(svc))

	api.Post("/competitions", recorder, CreateCompetition(svc))
	api.Post("/competitions/:id/entries", recorder, EnterCompetition(svc))
	api.Post("/competitions/:id/recompute", recorder, RecomputeCompetition(svc))
	api.Get("/competitions/:id/verify", recorder, VerifyCompetition(svc))
	api.Get("/competitions/:id/results", GetResults(svc))
	api.Get("/competitions/:id/results.xlsx", ExportResults(svc))
	api.Get("/competitions/:id/categories/:categoryId", GetCategoryResults(svc))
	api.Get("/ladder", GetLadder(svc))

	// "pending" is registered before ":id" so it is not read as a session id.
	api.Post("/sessions", middleware.RequireAuth(), CreateSession(svc))
	api.Get("/sessions/pending", recorder, GetPendingSessions(svc))
	api.Get("/sessions/:id", GetSession(svc))
	api.Put("/sessions/:id/ends", middleware.RequireAuth(), SaveEnd(svc))
	api.Post("/sessions/:id/finalize", recorder, FinalizeSession(svc))
	api.Get("/sessions/:id/live", LiveSession(svc, hub))

	api.Get("/archers/:id/history", GetHistory(svc))
	api.Get("/archers/:id/personal-bests", GetPersonalBests(svc))
}
