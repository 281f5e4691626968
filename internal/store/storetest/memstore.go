// Package storetest provides an in-memory store.Store for tests across the module.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/store"
)

// memState holds rows flattened the way the tables hold them; relations are joined on read.
type memState struct {
	nextID     int64
	genders    map[int64]models.Gender
	divisions  map[int64]models.Division
	ageClasses map[int64]models.AgeClass
	categories map[int64]models.Category
	archers    map[int64]models.Archer
	members    map[int64]models.ClubMember
	rounds     map[int64]models.Round
	ranges     map[int64]models.RoundRange
	sessions   map[int64]models.Session
	ends       map[int64]models.End
	arrows     map[int64]models.Arrow
	comps      map[int64]models.Competition
	entries    map[int64]models.CompetitionEntry
}

func newMemState() *memState {
	return &memState{
		genders:    map[int64]models.Gender{},
		divisions:  map[int64]models.Division{},
		ageClasses: map[int64]models.AgeClass{},
		categories: map[int64]models.Category{},
		archers:    map[int64]models.Archer{},
		members:    map[int64]models.ClubMember{},
		rounds:     map[int64]models.Round{},
		ranges:     map[int64]models.RoundRange{},
		sessions:   map[int64]models.Session{},
		ends:       map[int64]models.End{},
		arrows:     map[int64]models.Arrow{},
		comps:      map[int64]models.Competition{},
		entries:    map[int64]models.CompetitionEntry{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memState) clone() *memState {
	return &memState{
		nextID:     st.nextID,
		genders:    cloneMap(st.genders),
		divisions:  cloneMap(st.divisions),
		ageClasses: cloneMap(st.ageClasses),
		categories: cloneMap(st.categories),
		archers:    cloneMap(st.archers),
		members:    cloneMap(st.members),
		rounds:     cloneMap(st.rounds),
		ranges:     cloneMap(st.ranges),
		sessions:   cloneMap(st.sessions),
		ends:       cloneMap(st.ends),
		arrows:     cloneMap(st.arrows),
		comps:      cloneMap(st.comps),
		entries:    cloneMap(st.entries),
	}
}

func (st *memState) id() int64 {
	st.nextID++
	return st.nextID
}

// MemStore is an in-process store.Store. Tx runs against a copy of the state that replaces the
// original only when fn succeeds, so a failed transaction leaves nothing behind.
// Tests across the module use it in place of PostgreSQL.
type MemStore struct {
	mu    *sync.Mutex
	state *memState
	// inTx is set on the Store handed to a Tx callback; the outer lock is already held.
	inTx bool
	now  func() time.Time
}

// NewMemStore returns an empty store seeded with the fixed genders and divisions.
func NewMemStore() *MemStore {
	s := &MemStore{mu: &sync.Mutex{}, state: newMemState(), now: time.Now}
	for _, g := range []models.GenderCode{models.GenderMale, models.GenderFemale} {
		id := s.state.id()
		s.state.genders[id] = models.Gender{ID: id, Code: g}
	}
	for _, d := range []models.DivisionCode{
		models.DivisionRecurve, models.DivisionCompound, models.DivisionBarebow,
		models.DivisionLongbow, models.DivisionRecurveBarebow,
	} {
		id := s.state.id()
		s.state.divisions[id] = models.Division{ID: id, Code: d, IsActive: true}
	}
	return s
}

var _ store.Store = (*MemStore)(nil)

func (s *MemStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemStore) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &MemStore{mu: s.mu, state: s.state.clone(), inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// --- seeding helpers (the API has no archer or member management) ---

// GenderID returns the id of a seeded gender.
func (s *MemStore) GenderID(code models.GenderCode) int64 {
	defer s.lock()()
	for id, g := range s.state.genders {
		if g.Code == code {
			return id
		}
	}
	return 0
}

// DivisionID returns the id of a division by code.
func (s *MemStore) DivisionID(code models.DivisionCode) int64 {
	defer s.lock()()
	for id, d := range s.state.divisions {
		if d.Code == code {
			return id
		}
	}
	return 0
}

// AddArcher inserts an archer row.
func (s *MemStore) AddArcher(a models.Archer) models.Archer {
	defer s.lock()()
	a.ID = s.state.id()
	a.Gender, a.Division = models.Gender{}, models.Division{}
	s.state.archers[a.ID] = a
	return a
}

// AddMember inserts a club member row.
func (s *MemStore) AddMember(m models.ClubMember) models.ClubMember {
	defer s.lock()()
	m.ID = s.state.id()
	s.state.members[m.ID] = m
	return m
}

// SetEntryTotal overwrites an entry's cached final_total, as a stale or tampered row would.
func (s *MemStore) SetEntryTotal(entryID int64, total int) {
	defer s.lock()()
	e := s.state.entries[entryID]
	e.FinalTotal = &total
	s.state.entries[entryID] = e
}

// --- Store ---

func (s *MemStore) roundRanges(roundID int64) []models.RoundRange {
	var out []models.RoundRange
	for _, rr := range s.state.ranges {
		if rr.RoundID == roundID {
			out = append(out, rr)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemStore) round(id int64) (models.Round, bool) {
	r, ok := s.state.rounds[id]
	if ok {
		r.Ranges = s.roundRanges(id)
	}
	return r, ok
}

func (s *MemStore) session(id int64) (models.Session, bool) {
	sess, ok := s.state.sessions[id]
	if !ok {
		return sess, false
	}
	sess.Round, _ = s.round(sess.RoundID)

	var ends []models.End
	for _, e := range s.state.ends {
		if e.SessionID != id {
			continue
		}
		for _, a := range s.state.arrows {
			if a.EndID == e.ID {
				e.Arrows = append(e.Arrows, a)
			}
		}
		sort.Slice(e.Arrows, func(i, j int) bool { return e.Arrows[i].ArrowNo < e.Arrows[j].ArrowNo })
		ends = append(ends, e)
	}
	sort.Slice(ends, func(i, j int) bool {
		if ends[i].RoundRangeID != ends[j].RoundRangeID {
			return ends[i].RoundRangeID < ends[j].RoundRangeID
		}
		return ends[i].EndNo < ends[j].EndNo
	})
	sess.Ends = ends
	return sess, true
}

func (s *MemStore) LoadSession(ctx context.Context, id int64) (*models.Session, error) {
	defer s.lock()()
	sess, ok := s.session(id)
	if !ok {
		return nil, apperrors.NotFound("session %d not found", id)
	}
	return &sess, nil
}

func (s *MemStore) LoadRoundRanges(ctx context.Context, roundID int64) ([]models.RoundRange, error) {
	defer s.lock()()
	if _, ok := s.state.rounds[roundID]; !ok {
		return nil, apperrors.NotFound("round %d not found", roundID)
	}
	return s.roundRanges(roundID), nil
}

func (s *MemStore) SaveEnd(ctx context.Context, sessionID, roundRangeID int64, endNo int, arrows []models.Arrow) error {
	defer s.lock()()
	if _, ok := s.state.sessions[sessionID]; !ok {
		return apperrors.Validation("save end: session %d references a missing row", sessionID)
	}
	if _, ok := s.state.ranges[roundRangeID]; !ok {
		return apperrors.Validation("save end: range %d references a missing row", roundRangeID)
	}
	if endNo < 1 || endNo > models.MaxEndNo {
		return apperrors.Validation("save end: end_no %d out of range", endNo)
	}
	seen := map[int]bool{}
	for _, a := range arrows {
		if a.ArrowNo < 1 || a.ArrowNo > models.ArrowsPerEnd || seen[a.ArrowNo] {
			return apperrors.Validation("save end: arrow_no %d rejected", a.ArrowNo)
		}
		seen[a.ArrowNo] = true
	}

	var endID int64
	for id, e := range s.state.ends {
		if e.SessionID == sessionID && e.RoundRangeID == roundRangeID && e.EndNo == endNo {
			endID = id
		}
	}
	if endID == 0 {
		endID = s.state.id()
		s.state.ends[endID] = models.End{ID: endID, SessionID: sessionID, RoundRangeID: roundRangeID, EndNo: endNo}
	} else {
		for id, a := range s.state.arrows {
			if a.EndID == endID {
				delete(s.state.arrows, id)
			}
		}
	}
	for _, a := range arrows {
		id := s.state.id()
		s.state.arrows[id] = models.Arrow{ID: id, EndID: endID, ArrowNo: a.ArrowNo, Value: a.Value}
	}

	sess := s.state.sessions[sessionID]
	sess.UpdatedAt = s.now()
	s.state.sessions[sessionID] = sess
	return nil
}

func (s *MemStore) FinalizeSession(ctx context.Context, sessionID int64) error {
	defer s.lock()()
	sess, ok := s.state.sessions[sessionID]
	if !ok {
		return apperrors.NotFound("session %d not found", sessionID)
	}
	sess.Status = models.SessionStatusFinal
	sess.UpdatedAt = s.now()
	s.state.sessions[sessionID] = sess
	return nil
}

func (s *MemStore) UpsertCompetitionEntry(ctx context.Context, entry *models.CompetitionEntry) error {
	defer s.lock()()
	if _, ok := s.state.sessions[entry.SessionID]; !ok {
		return apperrors.Validation("upsert entry: session %d references a missing row", entry.SessionID)
	}
	if _, ok := s.state.comps[entry.CompetitionID]; !ok {
		return apperrors.Validation("upsert entry: competition %d references a missing row", entry.CompetitionID)
	}
	if _, ok := s.state.categories[entry.CategoryID]; !ok {
		return apperrors.Validation("upsert entry: category %d references a missing row", entry.CategoryID)
	}

	row := *entry
	row.Session, row.Competition, row.Category = models.Session{}, models.Competition{}, models.Category{}
	for id, e := range s.state.entries {
		if e.CompetitionID == entry.CompetitionID && e.SessionID == entry.SessionID {
			row.ID = id
		}
	}
	if row.ID == 0 {
		row.ID = s.state.id()
	}
	s.state.entries[row.ID] = row
	entry.ID = row.ID
	return nil
}

func (s *MemStore) CreateSession(ctx context.Context, sess *models.Session) error {
	defer s.lock()()
	if _, ok := s.state.archers[sess.ArcherID]; !ok {
		return apperrors.Validation("create session: archer %d references a missing row", sess.ArcherID)
	}
	if _, ok := s.state.rounds[sess.RoundID]; !ok {
		return apperrors.Validation("create session: round %d references a missing row", sess.RoundID)
	}
	row := *sess
	row.ID = s.state.id()
	if row.Status == "" {
		row.Status = models.SessionStatusPreliminary
	}
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	row.Archer, row.Round, row.Ends = models.Archer{}, models.Round{}, nil
	s.state.sessions[row.ID] = row

	sess.ID, sess.Status, sess.CreatedAt, sess.UpdatedAt = row.ID, row.Status, row.CreatedAt, row.UpdatedAt
	return nil
}

func (s *MemStore) ListSessions(ctx context.Context, f store.SessionFilter) ([]models.Session, error) {
	defer s.lock()()
	ids := map[int64]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}

	var out []models.Session
	for id, row := range s.state.sessions {
		if f.ArcherID != 0 && row.ArcherID != f.ArcherID ||
			f.RoundID != 0 && row.RoundID != f.RoundID ||
			f.Status != "" && row.Status != f.Status ||
			len(ids) > 0 && !ids[id] {
			continue
		}
		sess, _ := s.session(id)
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ShootDate.Equal(out[j].ShootDate) {
			return out[i].ShootDate.After(out[j].ShootDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemStore) GetArcher(ctx context.Context, id int64) (*models.Archer, error) {
	defer s.lock()()
	a, ok := s.state.archers[id]
	if !ok {
		return nil, apperrors.NotFound("archer %d not found", id)
	}
	a.Gender = s.state.genders[a.GenderID]
	a.Division = s.state.divisions[a.DivisionID]
	return &a, nil
}

func (s *MemStore) GetMember(ctx context.Context, id int64) (*models.ClubMember, error) {
	defer s.lock()()
	m, ok := s.state.members[id]
	if !ok {
		return nil, apperrors.NotFound("member %d not found", id)
	}
	return &m, nil
}

func (s *MemStore) ListRounds(ctx context.Context) ([]models.Round, error) {
	defer s.lock()()
	out := make([]models.Round, 0, len(s.state.rounds))
	for id := range s.state.rounds {
		r, _ := s.round(id)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	defer s.lock()()
	r, ok := s.round(id)
	if !ok {
		return nil, apperrors.NotFound("round %d not found", id)
	}
	return &r, nil
}

func (s *MemStore) CreateRound(ctx context.Context, r *models.Round) error {
	defer s.lock()()
	for _, existing := range s.state.rounds {
		if existing.Name == r.Name {
			return apperrors.Validation("create round %q: already exists", r.Name)
		}
	}
	type key struct{ distance, face int }
	seen := map[key]bool{}
	for _, rr := range r.Ranges {
		k := key{rr.DistanceM, rr.FaceSize}
		if seen[k] {
			return apperrors.Validation("create round %q: already exists", r.Name)
		}
		seen[k] = true
		if rr.FaceSize != models.FaceSize80 && rr.FaceSize != models.FaceSize122 ||
			rr.EndsPerRange != 5 && rr.EndsPerRange != 6 {
			return apperrors.Validation("create round %q: value out of range", r.Name)
		}
	}

	r.ID = s.state.id()
	s.state.rounds[r.ID] = models.Round{ID: r.ID, Name: r.Name}
	for i := range r.Ranges {
		r.Ranges[i].ID = s.state.id()
		r.Ranges[i].RoundID = r.ID
		s.state.ranges[r.Ranges[i].ID] = r.Ranges[i]
	}
	return nil
}

func (s *MemStore) ListDivisions(ctx context.Context) ([]models.Division, error) {
	defer s.lock()()
	out := make([]models.Division, 0, len(s.state.divisions))
	for _, d := range s.state.divisions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) SetDivisionActive(ctx context.Context, id int64, active bool) (*models.Division, error) {
	defer s.lock()()
	d, ok := s.state.divisions[id]
	if !ok {
		return nil, apperrors.NotFound("division %d not found", id)
	}
	d.IsActive = active
	s.state.divisions[id] = d
	return &d, nil
}

func (s *MemStore) CreateAgeClass(ctx context.Context, ac *models.AgeClass) error {
	defer s.lock()()
	for _, existing := range s.state.ageClasses {
		if existing.Code == ac.Code && existing.PolicyYear == ac.PolicyYear {
			return apperrors.Validation("create age class %q: already exists", ac.Code)
		}
	}
	ac.ID = s.state.id()
	s.state.ageClasses[ac.ID] = *ac
	return nil
}

func (s *MemStore) ListAgeClasses(ctx context.Context, policyYear int) ([]models.AgeClass, error) {
	defer s.lock()()
	var out []models.AgeClass
	for _, ac := range s.state.ageClasses {
		if ac.PolicyYear == policyYear {
			out = append(out, ac)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinBirthYear < out[j].MinBirthYear })
	return out, nil
}

func (s *MemStore) CreateCategory(ctx context.Context, c *models.Category) error {
	defer s.lock()()
	if _, ok := s.state.ageClasses[c.AgeClassID]; !ok {
		return apperrors.Validation("create category: age class %d references a missing row", c.AgeClassID)
	}
	if _, ok := s.state.genders[c.GenderID]; !ok {
		return apperrors.Validation("create category: gender %d references a missing row", c.GenderID)
	}
	if _, ok := s.state.divisions[c.DivisionID]; !ok {
		return apperrors.Validation("create category: division %d references a missing row", c.DivisionID)
	}
	for _, existing := range s.state.categories {
		if existing.AgeClassID == c.AgeClassID && existing.GenderID == c.GenderID && existing.DivisionID == c.DivisionID {
			return apperrors.Validation("create category: already exists")
		}
	}
	c.ID = s.state.id()
	s.state.categories[c.ID] = models.Category{ID: c.ID, AgeClassID: c.AgeClassID, GenderID: c.GenderID, DivisionID: c.DivisionID}
	return nil
}

func (s *MemStore) category(c models.Category) models.Category {
	c.AgeClass = s.state.ageClasses[c.AgeClassID]
	c.Gender = s.state.genders[c.GenderID]
	c.Division = s.state.divisions[c.DivisionID]
	return c
}

func (s *MemStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	defer s.lock()()
	out := make([]models.Category, 0, len(s.state.categories))
	for _, c := range s.state.categories {
		out = append(out, s.category(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	defer s.lock()()
	c, ok := s.state.categories[id]
	if !ok {
		return nil, apperrors.NotFound("category %d not found", id)
	}
	c = s.category(c)
	return &c, nil
}

func (s *MemStore) CreateCompetition(ctx context.Context, c *models.Competition) error {
	defer s.lock()()
	if _, ok := s.state.rounds[c.RoundID]; !ok {
		return apperrors.Validation("create competition %q: round %d references a missing row", c.Name, c.RoundID)
	}
	if c.EndDate.Before(c.StartDate) {
		return apperrors.Validation("create competition %q: value out of range", c.Name)
	}
	c.ID = s.state.id()
	row := *c
	row.Round = models.Round{}
	s.state.comps[c.ID] = row
	return nil
}

func (s *MemStore) GetCompetition(ctx context.Context, id int64) (*models.Competition, error) {
	defer s.lock()()
	c, ok := s.state.comps[id]
	if !ok {
		return nil, apperrors.NotFound("competition %d not found", id)
	}
	return &c, nil
}

func (s *MemStore) ListCompetitionsStartingIn(ctx context.Context, year int) ([]models.Competition, error) {
	defer s.lock()()
	var out []models.Competition
	for _, c := range s.state.comps {
		if c.StartDate.Year() == year {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) ListCompetitionEntries(ctx context.Context, f store.EntryFilter) ([]models.CompetitionEntry, error) {
	defer s.lock()()
	comps := map[int64]bool{}
	for _, id := range f.CompetitionIDs {
		comps[id] = true
	}

	var out []models.CompetitionEntry
	for _, e := range s.state.entries {
		if len(comps) > 0 && !comps[e.CompetitionID] ||
			f.CategoryID != 0 && e.CategoryID != f.CategoryID ||
			f.SessionID != 0 && e.SessionID != f.SessionID {
			continue
		}
		e.Session = s.state.sessions[e.SessionID]
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// String is for debugging failed tests.
func (s *MemStore) String() string {
	defer s.lock()()
	return fmt.Sprintf("MemStore{sessions:%d ends:%d arrows:%d entries:%d}",
		len(s.state.sessions), len(s.state.ends), len(s.state.arrows), len(s.state.entries))
}
