package service

import (
	"context"
	"sort"
	"time"

	"github.com/trentd187/archery-club/internal/access"
	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/scoring"
	"github.com/trentd187/archery-club/internal/store"
)

// EntryView is a competition entry with its cached results.
type EntryView struct {
	ID             int64 `json:"id"`
	CompetitionID  int64 `json:"competition_id"`
	SessionID      int64 `json:"session_id"`
	CategoryID     int64 `json:"category_id"`
	FinalTotal     *int  `json:"final_total"`
	XCount         *int  `json:"x_count"`
	TenCount       *int  `json:"ten_count"`
	RankInCategory *int  `json:"rank_in_category"`
}

func entryViewOf(e models.CompetitionEntry) EntryView {
	return EntryView{
		ID:             e.ID,
		CompetitionID:  e.CompetitionID,
		SessionID:      e.SessionID,
		CategoryID:     e.CategoryID,
		FinalTotal:     e.FinalTotal,
		XCount:         e.XCount,
		TenCount:       e.TenCount,
		RankInCategory: e.RankInCategory,
	}
}

// rankEntries derives ranked standings for entries of one (competition, category) from
// their arrows. Only Final sessions are ranked, and only ends shot on the competition
// round's ranges count.
func (s *Service) rankEntries(ctx context.Context, st store.Store, comp *models.Competition, entries []models.CompetitionEntry) ([]scoring.Standing, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	ranges, err := st.LoadRoundRanges(ctx, comp.RoundID)
	if err != nil {
		return nil, err
	}
	// A session of the right round can still hold ends on ranges that were since removed
	// from it; those ends don't count.
	inRound := make(map[int64]bool, len(ranges))
	for _, rr := range ranges {
		inRound[rr.ID] = true
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.SessionID)
	}
	// Preliminary sessions stay entered but are left out of the table until approved.
	sessions, err := st.ListSessions(ctx, store.SessionFilter{IDs: ids, Status: models.SessionStatusFinal})
	if err != nil {
		return nil, err
	}

	standings := make([]scoring.Standing, 0, len(sessions))
	for _, sess := range sessions {
		ends := sess.Ends[:0:0]
		for _, e := range sess.Ends {
			if inRound[e.RoundRangeID] {
				ends = append(ends, e)
			}
		}
		sess.Ends = ends
		totals, err := scoring.ComputeSessionTotal(sess, ranges)
		if err != nil {
			return nil, err
		}
		standings = append(standings, scoring.StandingFor(sess.ArcherID, totals))
	}
	return scoring.Rank(standings, s.policy), nil
}

// recomputeGroup rewrites the cached totals and ranks of one (competition, category).
// Entries whose session is not Final have their cached values cleared.
func (s *Service) recomputeGroup(ctx context.Context, tx store.Store, comp *models.Competition, categoryID int64) error {
	entries, err := tx.ListCompetitionEntries(ctx, store.EntryFilter{
		CompetitionIDs: []int64{comp.ID},
		CategoryID:     categoryID,
	})
	if err != nil {
		return err
	}
	standings, err := s.rankEntries(ctx, tx, comp, entries)
	if err != nil {
		return err
	}
	bySession := make(map[int64]scoring.Standing, len(standings))
	for _, st := range standings {
		bySession[st.SessionID] = st
	}

	// Write every entry, not just the ranked ones: unranked entries get their cached
	// values cleared.
	for _, e := range entries {
		row := models.CompetitionEntry{
			ID:            e.ID,
			SessionID:     e.SessionID,
			CompetitionID: e.CompetitionID,
			CategoryID:    e.CategoryID,
		}
		if st, ok := bySession[e.SessionID]; ok {
			total, xs, tens, rank := st.FinalTotal, st.XCount, st.TenCount, st.Rank
			row.FinalTotal, row.XCount, row.TenCount, row.RankInCategory = &total, &xs, &tens, &rank
		}
		if err := tx.UpsertCompetitionEntry(ctx, &row); err != nil {
			return err
		}
	}
	return nil
}

// recomputeSessionEntries re-ranks every category the session is entered in.
func (s *Service) recomputeSessionEntries(ctx context.Context, tx store.Store, sessionID int64) error {
	entries, err := tx.ListCompetitionEntries(ctx, store.EntryFilter{SessionID: sessionID})
	if err != nil {
		return err
	}
	for _, e := range entries {
		comp, err := tx.GetCompetition(ctx, e.CompetitionID)
		if err != nil {
			return err
		}
		if err := s.recomputeGroup(ctx, tx, comp, e.CategoryID); err != nil {
			return err
		}
	}
	return nil
}

// EnterCompetition places a session in a competition. The category comes from the archer's
// eligibility in the competition's start year, and the session must be of the competition's
// round. Entering a session again moves it to its current category.
func (s *Service) EnterCompetition(ctx context.Context, id access.Identity, competitionID, sessionID int64) (*EntryView, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.RoundID != comp.RoundID {
		return nil, apperrors.Validation("session %d was shot on round %d but competition %d uses round %d",
			sess.ID, sess.RoundID, comp.ID, comp.RoundID)
	}

	// The category is never chosen by the caller. Age is judged against the age classes
	// of the year the competition starts in, even for a competition that runs past new year.
	archer, err := s.store.GetArcher(ctx, sess.ArcherID)
	if err != nil {
		return nil, err
	}
	policyYear := comp.StartDate.Year()
	ageClasses, err := s.store.ListAgeClasses(ctx, policyYear)
	if err != nil {
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	cat, err := scoring.EligibleCategory(*archer, policyYear, ageClasses, categories)
	if err != nil {
		return nil, err
	}

	// Upsert the entry and re-rank inside one transaction. If the archer's category changed
	// since an earlier entry, the old category loses a row and has to be re-ranked too.
	var entry models.CompetitionEntry
	err = s.store.Tx(ctx, func(tx store.Store) error {
		previous, err := tx.ListCompetitionEntries(ctx, store.EntryFilter{
			CompetitionIDs: []int64{comp.ID},
			SessionID:      sess.ID,
		})
		if err != nil {
			return err
		}

		entry = models.CompetitionEntry{SessionID: sess.ID, CompetitionID: comp.ID, CategoryID: cat.ID}
		if err := tx.UpsertCompetitionEntry(ctx, &entry); err != nil {
			return err
		}
		if err := s.recomputeGroup(ctx, tx, comp, cat.ID); err != nil {
			return err
		}
		for _, p := range previous {
			if p.CategoryID != cat.ID {
				if err := s.recomputeGroup(ctx, tx, comp, p.CategoryID); err != nil {
					return err
				}
			}
		}

		// Read the row back so the response carries the rank recomputeGroup just wrote.
		stored, err := tx.ListCompetitionEntries(ctx, store.EntryFilter{
			CompetitionIDs: []int64{comp.ID},
			SessionID:      sess.ID,
		})
		if err != nil {
			return err
		}
		if len(stored) == 1 {
			entry = stored[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("competition entry saved",
		"competition_id", comp.ID,
		"session_id", sess.ID,
		"category_id", cat.ID,
	)
	view := entryViewOf(entry)
	return &view, nil
}

// RankCategory ranks the Final sessions of one competition category from their arrows.
// It is public and writes nothing.
func (s *Service) RankCategory(ctx context.Context, id access.Identity, competitionID, categoryID int64) ([]scoring.Standing, error) {
	if err := s.authorize(id, access.OpReadPublic, access.Public); err != nil {
		return nil, err
	}
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListCompetitionEntries(ctx, store.EntryFilter{
		CompetitionIDs: []int64{comp.ID},
		CategoryID:     categoryID,
	})
	if err != nil {
		return nil, err
	}
	return s.rankEntries(ctx, s.store, comp, entries)
}

// CategoryResult is the ranked table of one category.
type CategoryResult struct {
	CategoryID int64               `json:"category_id"`
	AgeClass   string              `json:"age_class"`
	Gender     models.GenderCode   `json:"gender"`
	Division   models.DivisionCode `json:"division"`
	Standings  []scoring.Standing  `json:"standings"`
}

// CompetitionResults are the standings of every category with entries.
type CompetitionResults struct {
	CompetitionID int64            `json:"competition_id"`
	Name          string           `json:"name"`
	RoundID       int64            `json:"round_id"`
	StartDate     string           `json:"start_date"`
	EndDate       string           `json:"end_date"`
	Categories    []CategoryResult `json:"categories"`
}

// Results ranks every category of a competition. It is public.
func (s *Service) Results(ctx context.Context, id access.Identity, competitionID int64) (*CompetitionResults, error) {
	if err := s.authorize(id, access.OpReadPublic, access.Public); err != nil {
		return nil, err
	}
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	groups, err := s.entryGroups(ctx, s.store, comp.ID)
	if err != nil {
		return nil, err
	}

	res := &CompetitionResults{
		CompetitionID: comp.ID,
		Name:          comp.Name,
		RoundID:       comp.RoundID,
		StartDate:     formatDate(comp.StartDate),
		EndDate:       formatDate(comp.EndDate),
		Categories:    make([]CategoryResult, 0, len(groups)),
	}
	for _, g := range groups {
		cat, err := s.store.GetCategory(ctx, g.categoryID)
		if err != nil {
			return nil, err
		}
		standings, err := s.rankEntries(ctx, s.store, comp, g.entries)
		if err != nil {
			return nil, err
		}
		if standings == nil {
			standings = []scoring.Standing{}
		}
		res.Categories = append(res.Categories, CategoryResult{
			CategoryID: cat.ID,
			AgeClass:   cat.AgeClass.Code,
			Gender:     cat.Gender.Code,
			Division:   cat.Division.Code,
			Standings:  standings,
		})
	}
	return res, nil
}

type entryGroup struct {
	categoryID int64
	entries    []models.CompetitionEntry
}

// entryGroups splits a competition's entries by category, lowest category id first.
func (s *Service) entryGroups(ctx context.Context, st store.Store, competitionID int64) ([]entryGroup, error) {
	entries, err := st.ListCompetitionEntries(ctx, store.EntryFilter{CompetitionIDs: []int64{competitionID}})
	if err != nil {
		return nil, err
	}
	byCategory := map[int64][]models.CompetitionEntry{}
	for _, e := range entries {
		byCategory[e.CategoryID] = append(byCategory[e.CategoryID], e)
	}
	groups := make([]entryGroup, 0, len(byCategory))
	for id, es := range byCategory {
		groups = append(groups, entryGroup{categoryID: id, entries: es})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].categoryID < groups[j].categoryID })
	return groups, nil
}

// RecomputeCompetition rewrites the cached totals and ranks of every entry of a
// competition in one transaction. Recorder only.
func (s *Service) RecomputeCompetition(ctx context.Context, id access.Identity, competitionID int64) (*CompetitionResults, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var categories int
	err = s.store.Tx(ctx, func(tx store.Store) error {
		groups, err := s.entryGroups(ctx, tx, comp.ID)
		if err != nil {
			return err
		}
		categories = len(groups)
		for _, g := range groups {
			if err := s.recomputeGroup(ctx, tx, comp, g.categoryID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	s.metrics.ObserveRecompute(elapsed)
	s.log.Info("competition recomputed",
		"competition_id", comp.ID,
		"categories", categories,
		"elapsed", elapsed,
	)
	return s.Results(ctx, id, comp.ID)
}

// Mismatch is an entry whose cached values disagree with its arrows.
type Mismatch struct {
	EntryID       int64 `json:"entry_id"`
	SessionID     int64 `json:"session_id"`
	CategoryID    int64 `json:"category_id"`
	StoredTotal   *int  `json:"stored_total"`
	ComputedTotal *int  `json:"computed_total"`
	StoredRank    *int  `json:"stored_rank"`
	ComputedRank  *int  `json:"computed_rank"`
}

// VerifyReport is the outcome of VerifyCompetition.
type VerifyReport struct {
	CompetitionID int64      `json:"competition_id"`
	Checked       int        `json:"checked"`
	Mismatches    []Mismatch `json:"mismatches"`
}

// OK reports whether every cached entry matched.
func (r VerifyReport) OK() bool { return len(r.Mismatches) == 0 }

// VerifyCompetition recomputes every entry from its arrows and reports the entries whose
// stored total or rank differs. It writes nothing. Recorder only.
func (s *Service) VerifyCompetition(ctx context.Context, id access.Identity, competitionID int64) (*VerifyReport, error) {
	if err := s.authorize(id, access.OpManageReference, access.Public); err != nil {
		return nil, err
	}
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	groups, err := s.entryGroups(ctx, s.store, comp.ID)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{CompetitionID: comp.ID, Mismatches: []Mismatch{}}
	for _, g := range groups {
		standings, err := s.rankEntries(ctx, s.store, comp, g.entries)
		if err != nil {
			return nil, err
		}
		bySession := make(map[int64]scoring.Standing, len(standings))
		for _, st := range standings {
			bySession[st.SessionID] = st
		}

		// nil on both sides is a match: a Preliminary session has no total and no rank.
		for _, e := range g.entries {
			report.Checked++
			var total, rank *int
			if st, ok := bySession[e.SessionID]; ok {
				t, r := st.FinalTotal, st.Rank
				total, rank = &t, &r
			}
			if equalInt(e.FinalTotal, total) && equalInt(e.RankInCategory, rank) {
				continue
			}
			report.Mismatches = append(report.Mismatches, Mismatch{
				EntryID:       e.ID,
				SessionID:     e.SessionID,
				CategoryID:    e.CategoryID,
				StoredTotal:   e.FinalTotal,
				ComputedTotal: total,
				StoredRank:    e.RankInCategory,
				ComputedRank:  rank,
			})
		}
	}
	if !report.OK() {
		s.log.Warn("competition entries out of date",
			"competition_id", comp.ID,
			"mismatches", len(report.Mismatches),
		)
	}
	return report, nil
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// LadderLine is one archer's championship standing.
type LadderLine struct {
	scoring.Standing
	Competitions int `json:"competitions"`
}

// Ladder is the championship ladder of one category for one year.
type Ladder struct {
	Year       int          `json:"year"`
	CategoryID int64        `json:"category_id"`
	Lines      []LadderLine `json:"lines"`
}

// Ladder sums each archer's Final entries in a category across the competitions that start
// in year and ranks the sums with the same tie-break as a single competition. It is public.
func (s *Service) Ladder(ctx context.Context, id access.Identity, year int, categoryID int64) (*Ladder, error) {
	if err := s.authorize(id, access.OpReadPublic, access.Public); err != nil {
		return nil, err
	}
	if year <= 0 {
		return nil, apperrors.Validation("year is required")
	}
	if categoryID <= 0 {
		return nil, apperrors.Validation("category is required")
	}
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	ladder := &Ladder{Year: year, CategoryID: categoryID, Lines: []LadderLine{}}
	comps, err := s.store.ListCompetitionsStartingIn(ctx, year)
	if err != nil {
		return nil, err
	}

	sums := map[int64]*LadderLine{}
	for i := range comps {
		comp := &comps[i]
		entries, err := s.store.ListCompetitionEntries(ctx, store.EntryFilter{
			CompetitionIDs: []int64{comp.ID},
			CategoryID:     categoryID,
		})
		if err != nil {
			return nil, err
		}
		standings, err := s.rankEntries(ctx, s.store, comp, entries)
		if err != nil {
			return nil, err
		}
		// An archer entered twice in one competition counts with their better session.
		counted := map[int64]bool{}
		for _, st := range standings {
			if counted[st.ArcherID] {
				continue
			}
			counted[st.ArcherID] = true
			line, ok := sums[st.ArcherID]
			if !ok {
				line = &LadderLine{Standing: scoring.Standing{ArcherID: st.ArcherID}}
				sums[st.ArcherID] = line
			}
			line.FinalTotal += st.FinalTotal
			line.XCount += st.XCount
			line.TenCount += st.TenCount
			line.Competitions++
		}
	}

	// Rank the sums exactly like a single competition: total, then Xs, then 10s.
	unranked := make([]scoring.Standing, 0, len(sums))
	for _, line := range sums {
		unranked = append(unranked, line.Standing)
	}
	for _, st := range scoring.Rank(unranked, s.policy) {
		ladder.Lines = append(ladder.Lines, LadderLine{Standing: st, Competitions: sums[st.ArcherID].Competitions})
	}
	return ladder, nil
}
