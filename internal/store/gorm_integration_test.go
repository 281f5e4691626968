//go:build integration

package store

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/database"
	"github.com/trentd187/archery-club/internal/models"
)

type GormStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	store     *GormStore
	archerID  int64
}

func TestGormStoreSuite(t *testing.T) {
	suite.Run(t, new(GormStoreSuite))
}

func migrationsSource() string {
	_, file, _, _ := runtime.Caller(0)
	return "file://" + filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

func (s *GormStoreSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx, "postgres:16-alpine",
		postgres.WithDatabase("archery"),
		postgres.WithUsername("archery"),
		postgres.WithPassword("archery"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.Require().NoError(database.RunMigrations(migrationsSource(), dsn))

	db, err := database.Connect(dsn, false)
	s.Require().NoError(err)
	s.store = NewGormStore(db)

	var gender models.Gender
	s.Require().NoError(db.Where("code = ?", models.GenderMale).First(&gender).Error)
	var division models.Division
	s.Require().NoError(db.Where("code = ?", models.DivisionCompound).First(&division).Error)
	archer := models.Archer{BirthYear: 1985, GenderID: gender.ID, DivisionID: division.ID}
	s.Require().NoError(db.Omit("Gender", "Division").Create(&archer).Error)
	s.archerID = archer.ID
}

func (s *GormStoreSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *GormStoreSuite) newSession(name string) (*models.Session, models.RoundRange) {
	round := &models.Round{Name: name, Ranges: []models.RoundRange{
		{DistanceM: 50, FaceSize: 122, EndsPerRange: 5},
		{DistanceM: 30, FaceSize: 80, EndsPerRange: 6},
	}}
	s.Require().NoError(s.store.CreateRound(s.ctx, round))

	sess := &models.Session{ArcherID: s.archerID, RoundID: round.ID, ShootDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), Status: models.SessionStatusPreliminary}
	s.Require().NoError(s.store.CreateSession(s.ctx, sess))
	return sess, round.Ranges[0]
}

func (s *GormStoreSuite) TestRoundRangesOrderedByDistance() {
	sess, _ := s.newSession("Ordering")
	ranges, err := s.store.LoadRoundRanges(s.ctx, sess.RoundID)
	s.Require().NoError(err)
	s.Require().Len(ranges, 2)
	s.Equal(30, ranges[0].DistanceM)
	s.Equal(50, ranges[1].DistanceM)

	_, err = s.store.LoadRoundRanges(s.ctx, 999999)
	s.True(apperrors.HasKind(err, apperrors.KindNotFound))
}

func (s *GormStoreSuite) TestSaveEndReplacesArrows() {
	sess, rr := s.newSession("Replace")

	first := []models.Arrow{{ArrowNo: 1, Value: "X"}, {ArrowNo: 2, Value: "9"}}
	s.Require().NoError(s.store.SaveEnd(s.ctx, sess.ID, rr.ID, 1, first))
	second := []models.Arrow{{ArrowNo: 1, Value: "M"}}
	s.Require().NoError(s.store.SaveEnd(s.ctx, sess.ID, rr.ID, 1, second))

	loaded, err := s.store.LoadSession(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Require().Len(loaded.Ends, 1)
	s.Require().Len(loaded.Ends[0].Arrows, 1)
	s.Equal(models.ArrowMiss, loaded.Ends[0].Arrows[0].Value)
	s.Len(loaded.Round.Ranges, 2)
}

func (s *GormStoreSuite) TestSaveEndIsAtomic() {
	sess, rr := s.newSession("Atomic")

	bad := []models.Arrow{{ArrowNo: 1, Value: "9"}, {ArrowNo: 2, Value: "Q"}}
	err := s.store.SaveEnd(s.ctx, sess.ID, rr.ID, 2, bad)
	s.True(apperrors.HasKind(err, apperrors.KindValidation), "got %v", err)

	loaded, err := s.store.LoadSession(s.ctx, sess.ID)
	s.Require().NoError(err)
	s.Empty(loaded.Ends, "the end row must roll back with its arrows")
}

func (s *GormStoreSuite) TestConstraintsSurfaceAsValidation() {
	err := s.store.CreateRound(s.ctx, &models.Round{Name: "BadFace", Ranges: []models.RoundRange{{DistanceM: 20, FaceSize: 60, EndsPerRange: 5}}})
	s.True(apperrors.HasKind(err, apperrors.KindValidation), "got %v", err)

	_, err = s.store.GetRound(s.ctx, 999999)
	s.True(apperrors.HasKind(err, apperrors.KindNotFound))

	s.newSession("Dup")
	err = s.store.CreateRound(s.ctx, &models.Round{Name: "Dup"})
	s.True(apperrors.HasKind(err, apperrors.KindValidation))
}

func (s *GormStoreSuite) TestFinalizeAndUpsertEntryInOneTx() {
	sess, _ := s.newSession("Finalize")

	comp := &models.Competition{Name: "Club Champs", RoundID: sess.RoundID,
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)}
	s.Require().NoError(s.store.CreateCompetition(s.ctx, comp))

	ac := &models.AgeClass{Code: "Open", MinBirthYear: 1950, MaxBirthYear: 2005, PolicyYear: 2025}
	s.Require().NoError(s.store.CreateAgeClass(s.ctx, ac))
	archer, err := s.store.GetArcher(s.ctx, s.archerID)
	s.Require().NoError(err)
	cat := &models.Category{AgeClassID: ac.ID, GenderID: archer.GenderID, DivisionID: archer.DivisionID}
	s.Require().NoError(s.store.CreateCategory(s.ctx, cat))

	total, rank := 300, 1
	err = s.store.Tx(s.ctx, func(tx Store) error {
		if err := tx.FinalizeSession(s.ctx, sess.ID); err != nil {
			return err
		}
		return tx.UpsertCompetitionEntry(s.ctx, &models.CompetitionEntry{
			SessionID: sess.ID, CompetitionID: comp.ID, CategoryID: cat.ID, FinalTotal: &total, RankInCategory: &rank,
		})
	})
	s.Require().NoError(err)

	total = 310
	entry := &models.CompetitionEntry{SessionID: sess.ID, CompetitionID: comp.ID, CategoryID: cat.ID, FinalTotal: &total, RankInCategory: &rank}
	s.Require().NoError(s.store.UpsertCompetitionEntry(s.ctx, entry))

	entries, err := s.store.ListCompetitionEntries(s.ctx, EntryFilter{CompetitionIDs: []int64{comp.ID}})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(310, *entries[0].FinalTotal)
	s.Equal(entry.ID, entries[0].ID)
	s.Equal(models.SessionStatusFinal, entries[0].Session.Status)

	comps, err := s.store.ListCompetitionsStartingIn(s.ctx, 2025)
	s.Require().NoError(err)
	s.NotEmpty(comps)
}

func TestMigrationsSourceExists(t *testing.T) {
	src := migrationsSource()
	assert.Contains(t, src, "migrations")
	require.DirExists(t, src[len("file://"):])
}
