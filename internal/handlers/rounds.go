package handlers

// This file handles the /api/v1/rounds routes and the other reference data a recorder
// manages: divisions, age classes and categories.
//
// Each exported function is a handler factory: it takes the scoring service and returns
// a fiber.Handler.

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/archery-club/internal/middleware"
	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/service"
)

// GetRounds returns a handler for GET /api/v1/rounds.
func GetRounds(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rounds, err := svc.ListRounds(c.UserContext(), middleware.Identity(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(rounds)
	}
}

// GetRound returns a handler for GET /api/v1/rounds/:id: the round's ranges nearest first,
// with the total ends and arrows of the full round.
func GetRound(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "round id must be a positive integer")
		}
		def, err := svc.GetRound(c.UserContext(), middleware.Identity(c), id)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(def)
	}
}

// CreateRound returns a handler for POST /api/v1/rounds.
// Body: {"name": "WA70", "ranges": [{"distance_m": 70, "face_size": 122, "ends_per_range": 6}]}
func CreateRound(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.NewRound
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		def, err := svc.CreateRound(c.UserContext(), middleware.Identity(c), req)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(def)
	}
}

// DivisionRequest is the JSON body of PATCH /api/v1/divisions/:id.
type DivisionRequest struct {
	IsActive *bool `json:"is_active"` // Required. A pointer so a missing field is not read as false.
}

// DivisionResponse is what division routes send back.
type DivisionResponse struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	IsActive bool   `json:"is_active"`
}

func divisionResponse(d *models.Division) DivisionResponse {
	return DivisionResponse{ID: d.ID, Code: string(d.Code), IsActive: d.IsActive}
}

// GetDivisions returns a handler for GET /api/v1/divisions.
// The division codes (R, C, B, L, RB) come from the schema; clients use this list to find
// the ids that PATCH /divisions/:id and POST /categories expect.
func GetDivisions(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		divisions, err := svc.ListDivisions(c.UserContext(), middleware.Identity(c))
		if err != nil {
			return fail(c, err)
		}

		// Map the gorm rows to the response shape; an empty table still encodes as [].
		out := make([]DivisionResponse, 0, len(divisions))
		for i := range divisions {
			out = append(out, divisionResponse(&divisions[i]))
		}
		return c.JSON(out)
	}
}

// UpdateDivision returns a handler for PATCH /api/v1/divisions/:id, which activates or
// deactivates a division.
func UpdateDivision(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return badRequest(c, "division id must be a positive integer")
		}
		var req DivisionRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.IsActive == nil {
			return badRequest(c, "is_active is required")
		}
		d, err := svc.SetDivisionActive(c.UserContext(), middleware.Identity(c), id, *req.IsActive)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(divisionResponse(d))
	}
}

// CreateAgeClass returns a handler for POST /api/v1/age-classes.
func CreateAgeClass(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.NewAgeClass
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		ac, err := svc.CreateAgeClass(c.UserContext(), middleware.Identity(c), req)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":             ac.ID,
			"code":           ac.Code,
			"min_birth_year": ac.MinBirthYear,
			"max_birth_year": ac.MaxBirthYear,
			"policy_year":    ac.PolicyYear,
		})
	}
}

// CreateCategory returns a handler for POST /api/v1/categories.
func CreateCategory(svc *service.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req service.NewCategory
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		cat, err := svc.CreateCategory(c.UserContext(), middleware.Identity(c), req)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":           cat.ID,
			"age_class_id": cat.AgeClassID,
			"age_class":    cat.AgeClass.Code,
			"gender":       cat.Gender.Code,
			"division":     cat.Division.Code,
		})
	}
}
