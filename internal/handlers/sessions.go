package handlers

// This file handles the /api/v1/sessions and /api/v1/archers routes: starting a session,
// entering ends, the recorder's approval queue, and an archer's history.
//
// A "session" is one archer shooting one round on one date. It starts Preliminary, gets
// its ends entered one at a time, and becomes Final when a recorder approves it. Only
// Final sessions count toward standings and personal bests.
//
// Like every file in this package, the handlers here only translate HTTP into service
// calls and back. Who may do what is decided inside the service (see internal/access),
// so a handler never checks roles itself; it passes the caller's Identity along and lets
// fail() turn a permission error into 401 or 403.

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/archery-club/internal/middleware"
	"github.com/trentd187/archery-club/internal/service"
)

// CreateSessionRequest is the JSON body we expect on POST /api/v1/sessions.
type CreateSessionRequest struct {
	ArcherID  int64  `json:"archer_id"`  // Optional for archers (defaults to their own), required for recorders
	RoundID   int64  `json:"round_id"`   // Required
	ShootDate string `json:"shoot_date"` // Required: "YYYY-MM-DD"
}

// CreateSession returns a handler for POST /api/v1/sessions.
// Responds 201 with the new (empty) scorecard.
func CreateSession(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Parse the JSON body into our request struct.
		// BodyParser also accepts form bodies, but the app only ever sends JSON.
		var req CreateSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		shootDate, err := parseDate(req.ShootDate)
		if err != nil {
			return badRequest(c, "shoot_date must be in YYYY-MM-DD format")
		}

		// An archer recording their own score can leave archer_id out.
		// A recorder has no archer of their own, so for them ArcherID stays 0 and the
		// service rejects the request as a validation error.
		id := middleware.Identity(c)
		if req.ArcherID == 0 {
			req.ArcherID = id.ArcherID
		}

		// The service refuses archers whose division has been switched off and rounds
		// that don't exist before inserting anything.
		card, err := svc.CreateSession(c.UserContext(), id, service.NewSession{
			ArcherID:  req.ArcherID,
			RoundID:   req.RoundID,
			ShootDate: shootDate,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(card)
	}
}

// GetPendingSessions returns a handler for GET /api/v1/sessions/pending.
// This is the recorder's approval queue: every Preliminary session, newest first.
func GetPendingSessions(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pending, err := svc.ListPending(c.UserContext(), middleware.Identity(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(pending)
	}
}

// GetSession returns a handler for GET /api/v1/sessions/:id (the scorecard).
func GetSession(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// :id must be a positive integer; anything else is a 400 before we touch the store.
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "session id must be a positive integer")
		}
		card, err := svc.GetScorecard(c.UserContext(), middleware.Identity(c), id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(card)
	}
}

// SaveEnd returns a handler for PUT /api/v1/sessions/:id/ends.
// Body: {"round_range_id": 3, "end_no": 1, "arrows": [{"value": "X"}, {"value": "9"}]}.
// PUT because saving the same end number again replaces its arrows.
//
// The response is the whole scorecard with recomputed totals, so the app never has to
// add up arrows itself. Watchers of the session's live stream get the same totals.
func SaveEnd(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "session id must be a positive integer")
		}

		// The request body maps straight onto the service input; arrow values stay strings
		// ("X", "10" ... "1", "M") until the scoring package parses them.
		var req service.EndInput
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		card, err := svc.SaveEnd(c.UserContext(), middleware.Identity(c), id, req)
		if err != nil {
			// A Final session, a bad arrow value or an end past the range's count all come
			// back as validation errors (400).
			return fail(c, err)
		}
		return c.JSON(card)
	}
}

// FinalizeSession returns a handler for POST /api/v1/sessions/:id/finalize.
// Recorder only. The session must have every end of every range shot (400 otherwise).
// Finalizing an already Final session is a no-op that returns the same scorecard.
func FinalizeSession(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "session id must be a positive integer")
		}
		card, err := svc.FinalizeSession(c.UserContext(), middleware.Identity(c), id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(card)
	}
}

// GetHistory returns a handler for GET /api/v1/archers/:id/history.
func GetHistory(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "archer id must be a positive integer")
		}
		history, err := svc.History(c.UserContext(), middleware.Identity(c), id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(history)
	}
}

// GetPersonalBests returns a handler for GET /api/v1/archers/:id/personal-bests.
// One entry per round the archer has a Final session for, holding the highest grand total.
func GetPersonalBests(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "archer id must be a positive integer")
		}
		pbs, err := svc.PersonalBests(c.UserContext(), middleware.Identity(c), id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(pbs)
	}
}
