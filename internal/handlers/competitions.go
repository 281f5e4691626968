package handlers

// This file handles the /api/v1/competitions routes and the championship ladder.
//
// A competition fixes one round and a date span. Archers enter it with a session they
// shot of that round, and each entry lands in the age/gender/division category the archer
// is eligible for in the competition's start year.
//
// --- Cached results ---
// Every entry stores its last computed total and rank so result pages don't re-add
// arrows on each request. The arrows stay the source of truth:
//   - recompute rewrites the cached values from the arrows (recorder only)
//   - verify compares them without writing and lists every entry that disagrees

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/archery-club/internal/export"
	"github.com/trentd187/archery-club/internal/middleware"
	"github.com/trentd187/archery-club/internal/service"
)

// CreateCompetitionRequest is the JSON body we expect on POST /api/v1/competitions.
type CreateCompetitionRequest struct {
	Name      string  `json:"name"`       // Required
	RoundID   int64   `json:"round_id"`   // Required: the one round every entry shoots
	StartDate string  `json:"start_date"` // Required: "YYYY-MM-DD"
	EndDate   string  `json:"end_date"`   // Optional: defaults to start_date
	RulesNote *string `json:"rules_note"` // Optional
}

// CreateCompetition returns a handler for POST /api/v1/competitions.
func CreateCompetition(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req CreateCompetitionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		// Dates arrive as plain "YYYY-MM-DD" strings. An empty end_date parses to the zero
		// time and the service then uses start_date for it.
		start, err := parseDate(req.StartDate)
		if err != nil {
			return badRequest(c, "start_date must be in YYYY-MM-DD format")
		}
		end, err := parseDate(req.EndDate)
		if err != nil {
			return badRequest(c, "end_date must be in YYYY-MM-DD format")
		}

		comp, err := svc.CreateCompetition(c.UserContext(), middleware.Identity(c), service.NewCompetition{
			Name:      req.Name,
			RoundID:   req.RoundID,
			StartDate: start,
			EndDate:   end,
			RulesNote: req.RulesNote,
		})
		if err != nil {
			return fail(c, err)
		}
		// The model carries gorm associations we don't want to serialise, so respond with a
		// flat map instead.
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":         comp.ID,
			"name":       comp.Name,
			"round_id":   comp.RoundID,
			"start_date": comp.StartDate.Format(time.DateOnly),
			"end_date":   comp.EndDate.Format(time.DateOnly),
			"rules_note": comp.RulesNote,
		})
	}
}

// EnterRequest is the JSON body of POST /api/v1/competitions/:id/entries.
type EnterRequest struct {
	SessionID int64 `json:"session_id"` // Required: a session of the competition's round
}

// EnterCompetition returns a handler for POST /api/v1/competitions/:id/entries.
// The category is derived from the archer, never taken from the request.
func EnterCompetition(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		compID, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "competition id must be a positive integer")
		}
		var req EnterRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.SessionID <= 0 {
			return badRequest(c, "session_id is required")
		}
		// No eligible category for the archer comes back as 422 no_matching_category,
		// which the app shows differently from a plain validation error.
		entry, err := svc.EnterCompetition(c.UserContext(), middleware.Identity(c), compID, req.SessionID)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	}
}

// GetResults returns a handler for GET /api/v1/competitions/:id/results.
// Public. Standings are ranked from the arrows on every call, so they are never stale
// even when the cached entry values are.
func GetResults(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		compID, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "competition id must be a positive integer")
		}
		res, err := svc.Results(c.UserContext(), middleware.Identity(c), compID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(res)
	}
}

// GetCategoryResults returns a handler for GET /api/v1/competitions/:id/categories/:categoryId.
func GetCategoryResults(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		compID, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "competition id must be a positive integer")
		}
		catID, ok := paramID(c, "categoryId")
		if !ok {
			return badRequest(c, "category id must be a positive integer")
		}
		standings, err := svc.RankCategory(c.UserContext(), middleware.Identity(c), compID, catID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(standings)
	}
}

// RecomputeCompetition returns a handler for POST /api/v1/competitions/:id/recompute.
func RecomputeCompetition(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		compID, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "competition id must be a positive integer")
		}
		res, err := svc.RecomputeCompetition(c.UserContext(), middleware.Identity(c), compID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(res)
	}
}

// VerifyCompetition returns a handler for GET /api/v1/competitions/:id/verify. A report
// with mismatches is still a 200; "ok" tells the caller whether the cache is consistent.
func VerifyCompetition(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		compID, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "competition id must be a positive integer")
		}
		report, err := svc.VerifyCompetition(c.UserContext(), middleware.Identity(c), compID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"ok":             report.OK(),
			"competition_id": report.CompetitionID,
			"checked":        report.Checked,
			"mismatches":     report.Mismatches,
		})
	}
}

// GetLadder returns a handler for GET /api/v1/ladder?year=2025&category=4.
func GetLadder(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Both query parameters are required; c.Query returns "" when one is missing, which
		// Atoi rejects.
		year, err := strconv.Atoi(c.Query("year"))
		if err != nil || year <= 0 {
			return badRequest(c, "year query parameter is required")
		}
		catID, err := strconv.ParseInt(c.Query("category"), 10, 64)
		if err != nil || catID <= 0 {
			return badRequest(c, "category query parameter is required")
		}
		ladder, err := svc.Ladder(c.UserContext(), middleware.Identity(c), year, catID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(ladder)
	}
}

// ExportResults returns a handler for GET /api/v1/competitions/:id/results.xlsx, the
// results as a workbook with one sheet per category.
func ExportResults(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		compID, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "competition id must be a positive integer")
		}
		res, err := svc.Results(c.UserContext(), middleware.Identity(c), compID)
		if err != nil {
			return fail(c, err)
		}
		// Build the whole workbook in memory first. A write error halfway through a streamed
		// body could no longer be turned into an error response.
		var buf bytes.Buffer
		if err := export.Standings(&buf, res); err != nil {
			return fail(c, err)
		}
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Attachment(fmt.Sprintf("competition-%d.xlsx", res.CompetitionID))
		return c.Send(buf.Bytes())
	}
}
