package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trentd187/archery-club/internal/models"
)

// GormStore is the PostgreSQL Store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open GORM handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var _ Store = (*GormStore)(nil)

// orderRanges is the preload scope for round ranges.
func orderRanges(db *gorm.DB) *gorm.DB {
	return db.Order("round_ranges.distance_m ASC, round_ranges.id ASC")
}

func orderEnds(db *gorm.DB) *gorm.DB {
	return db.Order("ends.round_range_id ASC, ends.end_no ASC")
}

func orderArrows(db *gorm.DB) *gorm.DB {
	return db.Order("arrows.arrow_no ASC")
}

// withScores preloads everything ComputeSessionTotal reads.
func withScores(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Round.Ranges", orderRanges).
		Preload("Ends", orderEnds).
		Preload("Ends.Arrows", orderArrows)
}

func (s *GormStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
	if err == nil {
		return nil
	}
	// Errors from fn are already classified; only the commit itself can be unclassified.
	return classify(err, "transaction")
}

func (s *GormStore) LoadSession(ctx context.Context, id int64) (*models.Session, error) {
	var sess models.Session
	err := withScores(s.db.WithContext(ctx)).First(&sess, id).Error
	if err != nil {
		return nil, classify(err, fmt.Sprintf("session %d", id))
	}
	return &sess, nil
}

func (s *GormStore) LoadRoundRanges(ctx context.Context, roundID int64) ([]models.RoundRange, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Round{}).Where("id = ?", roundID).Count(&count).Error; err != nil {
		return nil, classify(err, "count rounds")
	}
	if count == 0 {
		return nil, classify(gorm.ErrRecordNotFound, fmt.Sprintf("round %d", roundID))
	}

	var ranges []models.RoundRange
	err := orderRanges(s.db.WithContext(ctx)).Where("round_id = ?", roundID).Find(&ranges).Error
	if err != nil {
		return nil, classify(err, fmt.Sprintf("ranges of round %d", roundID))
	}
	return ranges, nil
}

func (s *GormStore) SaveEnd(ctx context.Context, sessionID, roundRangeID int64, endNo int, arrows []models.Arrow) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var end models.End
		err := tx.Where("session_id = ? AND round_range_id = ? AND end_no = ?", sessionID, roundRangeID, endNo).
			First(&end).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			end = models.End{SessionID: sessionID, RoundRangeID: roundRangeID, EndNo: endNo}
			if err := tx.Omit(clause.Associations).Create(&end).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.Where("end_id = ?", end.ID).Delete(&models.Arrow{}).Error; err != nil {
				return err
			}
		}

		if len(arrows) == 0 {
			return nil
		}
		rows := make([]models.Arrow, len(arrows))
		for i, a := range arrows {
			rows[i] = models.Arrow{EndID: end.ID, ArrowNo: a.ArrowNo, Value: a.Value}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		return tx.Model(&models.Session{}).Where("id = ?", sessionID).
			Update("updated_at", time.Now()).Error
	})
	return classify(err, fmt.Sprintf("save end %d of session %d", endNo, sessionID))
}

func (s *GormStore) FinalizeSession(ctx context.Context, sessionID int64) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", sessionID).
		Updates(map[string]any{"status": models.SessionStatusFinal, "updated_at": time.Now()})
	if res.Error != nil {
		return classify(res.Error, fmt.Sprintf("finalize session %d", sessionID))
	}
	if res.RowsAffected == 0 {
		return classify(gorm.ErrRecordNotFound, fmt.Sprintf("session %d", sessionID))
	}
	return nil
}

func (s *GormStore) UpsertCompetitionEntry(ctx context.Context, entry *models.CompetitionEntry) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "competition_id"}, {Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category_id", "final_total", "x_count", "ten_count", "rank_in_category",
		}),
	}).Create(entry).Error
	return classify(err, fmt.Sprintf("upsert entry for session %d", entry.SessionID))
}

func (s *GormStore) CreateSession(ctx context.Context, sess *models.Session) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(sess).Error
	return classify(err, "create session")
}

func (s *GormStore) ListSessions(ctx context.Context, f SessionFilter) ([]models.Session, error) {
	q := withScores(s.db.WithContext(ctx))
	if f.ArcherID != 0 {
		q = q.Where("archer_id = ?", f.ArcherID)
	}
	if f.RoundID != 0 {
		q = q.Where("round_id = ?", f.RoundID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}

	var sessions []models.Session
	if err := q.Order("shoot_date DESC, id DESC").Find(&sessions).Error; err != nil {
		return nil, classify(err, "list sessions")
	}
	return sessions, nil
}

func (s *GormStore) GetArcher(ctx context.Context, id int64) (*models.Archer, error) {
	var a models.Archer
	err := s.db.WithContext(ctx).Preload("Gender").Preload("Division").First(&a, id).Error
	if err != nil {
		return nil, classify(err, fmt.Sprintf("archer %d", id))
	}
	return &a, nil
}

func (s *GormStore) GetMember(ctx context.Context, id int64) (*models.ClubMember, error) {
	var m models.ClubMember
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, classify(err, fmt.Sprintf("member %d", id))
	}
	return &m, nil
}

func (s *GormStore) ListRounds(ctx context.Context) ([]models.Round, error) {
	var rounds []models.Round
	err := s.db.WithContext(ctx).Preload("Ranges", orderRanges).Order("name ASC").Find(&rounds).Error
	if err != nil {
		return nil, classify(err, "list rounds")
	}
	return rounds, nil
}

func (s *GormStore) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	var r models.Round
	if err := s.db.WithContext(ctx).Preload("Ranges", orderRanges).First(&r, id).Error; err != nil {
		return nil, classify(err, fmt.Sprintf("round %d", id))
	}
	return &r, nil
}

func (s *GormStore) CreateRound(ctx context.Context, r *models.Round) error {
	// Create inserts the ranges too; the transaction keeps a round from existing without them.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(r).Error
	})
	return classify(err, fmt.Sprintf("create round %q", r.Name))
}

func (s *GormStore) ListDivisions(ctx context.Context) ([]models.Division, error) {
	var out []models.Division
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, classify(err, "list divisions")
}

func (s *GormStore) SetDivisionActive(ctx context.Context, id int64, active bool) (*models.Division, error) {
	res := s.db.WithContext(ctx).Model(&models.Division{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, classify(res.Error, fmt.Sprintf("update division %d", id))
	}
	if res.RowsAffected == 0 {
		return nil, classify(gorm.ErrRecordNotFound, fmt.Sprintf("division %d", id))
	}

	var d models.Division
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, classify(err, fmt.Sprintf("division %d", id))
	}
	return &d, nil
}

func (s *GormStore) CreateAgeClass(ctx context.Context, ac *models.AgeClass) error {
	return classify(s.db.WithContext(ctx).Create(ac).Error, fmt.Sprintf("create age class %q", ac.Code))
}

func (s *GormStore) ListAgeClasses(ctx context.Context, policyYear int) ([]models.AgeClass, error) {
	var out []models.AgeClass
	err := s.db.WithContext(ctx).Where("policy_year = ?", policyYear).Order("min_birth_year ASC").Find(&out).Error
	if err != nil {
		return nil, classify(err, "list age classes")
	}
	return out, nil
}

func (s *GormStore) CreateCategory(ctx context.Context, c *models.Category) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
	return classify(err, "create category")
}

func (s *GormStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	err := s.db.WithContext(ctx).Preload("AgeClass").Preload("Gender").Preload("Division").
		Order("id ASC").Find(&out).Error
	if err != nil {
		return nil, classify(err, "list categories")
	}
	return out, nil
}

func (s *GormStore) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	var c models.Category
	err := s.db.WithContext(ctx).Preload("AgeClass").Preload("Gender").Preload("Division").First(&c, id).Error
	if err != nil {
		return nil, classify(err, fmt.Sprintf("category %d", id))
	}
	return &c, nil
}

func (s *GormStore) CreateCompetition(ctx context.Context, c *models.Competition) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
	return classify(err, fmt.Sprintf("create competition %q", c.Name))
}

func (s *GormStore) GetCompetition(ctx context.Context, id int64) (*models.Competition, error) {
	var c models.Competition
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, classify(err, fmt.Sprintf("competition %d", id))
	}
	return &c, nil
}

func (s *GormStore) ListCompetitionsStartingIn(ctx context.Context, year int) ([]models.Competition, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	var out []models.Competition
	err := s.db.WithContext(ctx).Where("start_date >= ? AND start_date < ?", from, to).
		Order("start_date ASC, id ASC").Find(&out).Error
	if err != nil {
		return nil, classify(err, "list competitions")
	}
	return out, nil
}

func (s *GormStore) ListCompetitionEntries(ctx context.Context, f EntryFilter) ([]models.CompetitionEntry, error) {
	q := s.db.WithContext(ctx).Preload("Session")
	if len(f.CompetitionIDs) > 0 {
		q = q.Where("competition_id IN ?", f.CompetitionIDs)
	}
	if f.CategoryID != 0 {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.SessionID != 0 {
		q = q.Where("session_id = ?", f.SessionID)
	}

	var out []models.CompetitionEntry
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, classify(err, "list competition entries")
	}
	return out, nil
}
