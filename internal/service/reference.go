package service

import (
	"context"
	"strings"
	"time"

	"github.com/trentd187/archery-club/internal/access"
	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/scoring"
)

// RoundSummary is one line of the round list.
type RoundSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	RangeCount int    `json:"range_count"`
}

// RangeDefinition is one range of a round definition.
type RangeDefinition struct {
	ID           int64 `json:"id"`
	DistanceM    int   `json:"distance_m"`
	FaceSize     int   `json:"face_size"`
	EndsPerRange int   `json:"ends_per_range"`
	Arrows       int   `json:"arrows"`
}

// RoundDefinition is a round with its ranges, nearest first, and the size of the full round.
type RoundDefinition struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Ranges      []RangeDefinition `json:"ranges"`
	TotalEnds   int               `json:"total_ends"`
	TotalArrows int               `json:"total_arrows"`
}

func definitionOf(r models.Round) RoundDefinition {
	ranges := append([]models.RoundRange(nil), r.Ranges...)
	scoring.SortRanges(ranges)

	def := RoundDefinition{ID: r.ID, Name: r.Name, Ranges: make([]RangeDefinition, 0, len(ranges))}
	for _, rr := range ranges {
		def.Ranges = append(def.Ranges, RangeDefinition{
			ID:           rr.ID,
			DistanceM:    rr.DistanceM,
			FaceSize:     rr.FaceSize,
			EndsPerRange: rr.EndsPerRange,
			Arrows:       rr.ArrowCount(),
		})
	}
	def.TotalEnds, def.TotalArrows = scoring.RoundSize(ranges)
	return def
}

// ListRounds is public.
func (s *Service) ListRounds(ctx context.Context, id access.Identity) ([]RoundSummary, error) {
	if err := s.authorize(id, access.OpReadPublic, access.Public); err != nil {
		return nil, err
	}
	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoundSummary, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, RoundSummary{ID: r.ID, Name: r.Name, RangeCount: len(r.Ranges)})
	}
	return out, nil
}

// GetRound returns a round definition. It is public.
func (s *Service) GetRound(ctx context.Context, id access.Identity, roundID int64) (*RoundDefinition, error) {
	if err := s.authorize(id, access.OpReadPublic, access.Public); err != nil {
		return nil, err
	}
	r, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	def := definitionOf(*r)
	return &def, nil
}

// NewRange is one range of a round being created.
type NewRange struct {
	DistanceM    int `json:"distance_m"`
	FaceSize     int `json:"face_size"`
	EndsPerRange int `json:"ends_per_range"`
}

// NewRound is the input of CreateRound.
type NewRound struct {
	Name   string     `json:"name"`
	Ranges []NewRange `json:"ranges"`
}

func (in NewRound) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperrors.Validation("round name is required")
	}
	if len(in.Ranges) == 0 {
		return apperrors.Validation("round %q needs at least one range", in.Name)
	}
	type key struct{ distance, face int }
	seen := make(map[key]bool, len(in.Ranges))
	for i, rr := range in.Ranges {
		if rr.DistanceM <= 0 {
			return apperrors.Validation("range %d: distance_m must be positive", i+1)
		}
		if rr.FaceSize != models.FaceSize80 && rr.FaceSize != models.FaceSize122 {
			return apperrors.Validation("range %d: face_size must be %d or %d", i+1, models.FaceSize80, models.FaceSize122)
		}
		if rr.EndsPerRange != 5 && rr.EndsPerRange != 6 {
			return apperrors.Validation("range %d: ends_per_range must be 5 or 6", i+1)
		}
		k := key{rr.DistanceM, rr.FaceSize}
		if seen[k] {
			return apperrors.Validation("range %d: %dm on a %dcm face appears twice", i+1, rr.DistanceM, rr.FaceSize)
		}
		seen[k] = true
	}
	return nil
}

// CreateRound adds a round with its ranges. Recorder only.
func (s *Service) CreateRound(ctx context.Context, id access.Identity, in NewRound) (*RoundDefinition, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	r := &models.Round{Name: strings.TrimSpace(in.Name)}
	for _, rr := range in.Ranges {
		r.Ranges = append(r.Ranges, models.RoundRange{
			DistanceM:    rr.DistanceM,
			FaceSize:     rr.FaceSize,
			EndsPerRange: rr.EndsPerRange,
		})
	}
	if err := s.store.CreateRound(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info("round created", "round_id", r.ID, "name", r.Name, "ranges", len(r.Ranges))
	def := definitionOf(*r)
	return &def, nil
}

// ListDivisions returns the club's bow types with their active flag. It is public.
// The five division codes are seeded with the schema; recorders only switch them on or off.
func (s *Service) ListDivisions(ctx context.Context, id access.Identity) ([]models.Division, error) {
	if err := s.authorize(id, access.OpReadPublic, access.Public); err != nil {
		return nil, err
	}
	return s.store.ListDivisions(ctx)
}

// SetDivisionActive activates or retires a division. Archers in an inactive division keep
// their history but cannot start new sessions.
func (s *Service) SetDivisionActive(ctx context.Context, id access.Identity, divisionID int64, active bool) (*models.Division, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	d, err := s.store.SetDivisionActive(ctx, divisionID, active)
	if err != nil {
		return nil, err
	}
	s.log.Info("division updated", "division_id", d.ID, "code", d.Code, "active", d.IsActive)
	return d, nil
}

// NewAgeClass is the input of CreateAgeClass.
type NewAgeClass struct {
	Code         string `json:"code"`
	MinBirthYear int    `json:"min_birth_year"`
	MaxBirthYear int    `json:"max_birth_year"`
	PolicyYear   int    `json:"policy_year"`
}

// CreateAgeClass adds a birth-year window for a policy year. Windows of one policy year may
// not overlap, otherwise an archer could fall into two categories.
func (s *Service) CreateAgeClass(ctx context.Context, id access.Identity, in NewAgeClass) (*models.AgeClass, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(in.Code)
	switch {
	case code == "":
		return nil, apperrors.Validation("age class code is required")
	case in.PolicyYear <= 0:
		return nil, apperrors.Validation("policy_year is required")
	case in.MinBirthYear <= 0 || in.MinBirthYear > in.MaxBirthYear:
		return nil, apperrors.Validation("birth year window %d..%d is empty", in.MinBirthYear, in.MaxBirthYear)
	}

	existing, err := s.store.ListAgeClasses(ctx, in.PolicyYear)
	if err != nil {
		return nil, err
	}
	for _, ac := range existing {
		if in.MinBirthYear <= ac.MaxBirthYear && ac.MinBirthYear <= in.MaxBirthYear {
			return nil, apperrors.Validation("birth years %d..%d overlap age class %q (%d..%d) for %d",
				in.MinBirthYear, in.MaxBirthYear, ac.Code, ac.MinBirthYear, ac.MaxBirthYear, in.PolicyYear)
		}
	}

	ac := &models.AgeClass{
		Code:         code,
		MinBirthYear: in.MinBirthYear,
		MaxBirthYear: in.MaxBirthYear,
		PolicyYear:   in.PolicyYear,
	}
	if err := s.store.CreateAgeClass(ctx, ac); err != nil {
		return nil, err
	}
	return ac, nil
}

// NewCategory is the input of CreateCategory.
type NewCategory struct {
	AgeClassID int64 `json:"age_class_id"`
	GenderID   int64 `json:"gender_id"`
	DivisionID int64 `json:"division_id"`
}

// CreateCategory adds an (age class, gender, division) bucket.
func (s *Service) CreateCategory(ctx context.Context, id access.Identity, in NewCategory) (*models.Category, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	if in.AgeClassID <= 0 || in.GenderID <= 0 || in.DivisionID <= 0 {
		return nil, apperrors.Validation("age_class_id, gender_id and division_id are required")
	}
	c := &models.Category{AgeClassID: in.AgeClassID, GenderID: in.GenderID, DivisionID: in.DivisionID}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return s.store.GetCategory(ctx, c.ID)
}

// NewCompetition is the input of CreateCompetition.
type NewCompetition struct {
	Name      string    `json:"name"`
	RoundID   int64     `json:"round_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	RulesNote *string   `json:"rules_note"`
}

// CreateCompetition adds a competition shot over one round.
func (s *Service) CreateCompetition(ctx context.Context, id access.Identity, in NewCompetition) (*models.Competition, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, apperrors.Validation("competition name is required")
	case in.StartDate.IsZero():
		return nil, apperrors.Validation("start_date is required")
	case in.EndDate.IsZero():
		in.EndDate = in.StartDate
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, apperrors.Validation("end_date %s is before start_date %s", formatDate(in.EndDate), formatDate(in.StartDate))
	}
	if _, err := s.store.GetRound(ctx, in.RoundID); err != nil {
		return nil, err
	}

	c := &models.Competition{
		Name:      name,
		RoundID:   in.RoundID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		RulesNote: in.RulesNote,
	}
	if err := s.store.CreateCompetition(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("competition created", "competition_id", c.ID, "round_id", c.RoundID)
	return c, nil
}
