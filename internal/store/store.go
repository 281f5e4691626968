// Package store is the storage collaborator of the scoring core: it loads and persists the
// entity rows, and every method is atomic on its own. Multi-step writes that must be seen
// all-or-nothing (finalizing a session together with its competition entries) run inside Tx.
//
// Errors are classified with apperrors: a missing row is KindNotFound, a constraint the
// database rejects is KindValidation, and anything else is KindStorage wrapping the cause.
package store

import (
	"context"

	"github.com/trentd187/archery-club/internal/models"
)

// SessionFilter narrows ListSessions. Zero fields do not filter.
type SessionFilter struct {
	ArcherID int64
	RoundID  int64
	Status   models.SessionStatus
	IDs      []int64
}

// EntryFilter narrows ListCompetitionEntries. Zero fields do not filter.
type EntryFilter struct {
	CompetitionIDs []int64
	CategoryID     int64
	SessionID      int64
}

// Store is everything the service layer needs from persistence.
type Store interface {
	// Tx runs fn against a Store bound to one database transaction. fn's error rolls back.
	Tx(ctx context.Context, fn func(tx Store) error) error

	// LoadSession returns a session with its round ranges, ends and arrows.
	LoadSession(ctx context.Context, id int64) (*models.Session, error)
	// LoadRoundRanges returns a round's ranges, nearest distance first.
	LoadRoundRanges(ctx context.Context, roundID int64) ([]models.RoundRange, error)
	// SaveEnd writes one end with its arrows, replacing any arrows already stored for
	// (session, range, end_no).
	SaveEnd(ctx context.Context, sessionID, roundRangeID int64, endNo int, arrows []models.Arrow) error
	// FinalizeSession marks a session Final.
	FinalizeSession(ctx context.Context, sessionID int64) error
	// UpsertCompetitionEntry inserts an entry or updates the derived columns of the
	// existing (competition, session) row. entry.ID is set on return.
	UpsertCompetitionEntry(ctx context.Context, entry *models.CompetitionEntry) error

	CreateSession(ctx context.Context, s *models.Session) error
	// ListSessions returns matching sessions with ends and arrows, newest shoot date first.
	ListSessions(ctx context.Context, f SessionFilter) ([]models.Session, error)

	GetArcher(ctx context.Context, id int64) (*models.Archer, error)
	GetMember(ctx context.Context, id int64) (*models.ClubMember, error)

	ListRounds(ctx context.Context) ([]models.Round, error)
	GetRound(ctx context.Context, id int64) (*models.Round, error)
	// CreateRound inserts a round together with its ranges.
	CreateRound(ctx context.Context, r *models.Round) error

	// ListDivisions returns the divisions seeded by the schema, ordered by id. The set of
	// codes is fixed; only the active flag changes.
	ListDivisions(ctx context.Context) ([]models.Division, error)
	SetDivisionActive(ctx context.Context, id int64, active bool) (*models.Division, error)
	CreateAgeClass(ctx context.Context, ac *models.AgeClass) error
	ListAgeClasses(ctx context.Context, policyYear int) ([]models.AgeClass, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)

	CreateCompetition(ctx context.Context, c *models.Competition) error
	GetCompetition(ctx context.Context, id int64) (*models.Competition, error)
	// ListCompetitionsStartingIn returns the competitions whose start date falls in year.
	ListCompetitionsStartingIn(ctx context.Context, year int) ([]models.Competition, error)
	ListCompetitionEntries(ctx context.Context, f EntryFilter) ([]models.CompetitionEntry, error)
}
