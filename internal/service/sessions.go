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

// EndView is one end of a scorecard.
type EndView struct {
	RoundRangeID int64               `json:"round_range_id"`
	EndNo        int                 `json:"end_no"`
	Arrows       []models.ArrowValue `json:"arrows"`
	Total        int                 `json:"total"`
}

// Scorecard is a session with its ends and the totals derived from them.
type Scorecard struct {
	SessionID int64                `json:"session_id"`
	ArcherID  int64                `json:"archer_id"`
	RoundID   int64                `json:"round_id"`
	RoundName string               `json:"round_name"`
	ShootDate string               `json:"shoot_date"`
	Status    models.SessionStatus `json:"status"`
	Ends      []EndView            `json:"ends"`
	Totals    scoring.SessionTotal `json:"totals"`
}

// sessionRanges returns the ranges of the session's round in definition order.
func sessionRanges(sess *models.Session) []models.RoundRange {
	ranges := append([]models.RoundRange(nil), sess.Round.Ranges...)
	scoring.SortRanges(ranges)
	return ranges
}

func scorecardOf(sess *models.Session, totals scoring.SessionTotal) *Scorecard {
	card := &Scorecard{
		SessionID: sess.ID,
		ArcherID:  sess.ArcherID,
		RoundID:   sess.RoundID,
		RoundName: sess.Round.Name,
		ShootDate: formatDate(sess.ShootDate),
		Status:    sess.Status,
		Ends:      make([]EndView, 0, len(sess.Ends)),
		Totals:    totals,
	}
	for _, e := range sess.Ends {
		v := EndView{RoundRangeID: e.RoundRangeID, EndNo: e.EndNo, Arrows: make([]models.ArrowValue, 0, len(e.Arrows))}
		for _, a := range e.Arrows {
			v.Arrows = append(v.Arrows, a.Value)
		}
		if t, err := scoring.TallyEnd(e.Arrows); err == nil {
			v.Total = t.Total
		}
		card.Ends = append(card.Ends, v)
	}
	return card
}

// totalsOf scores a loaded session against its own round.
func totalsOf(sess *models.Session) (scoring.SessionTotal, error) {
	return scoring.ComputeSessionTotal(*sess, sessionRanges(sess))
}

// NewSession is the input of CreateSession.
type NewSession struct {
	ArcherID  int64     `json:"archer_id"`
	RoundID   int64     `json:"round_id"`
	ShootDate time.Time `json:"shoot_date"`
}

// CreateSession starts a Preliminary session. Archers create their own; recorders may
// create one for anybody. The archer's division must still be active.
func (s *Service) CreateSession(ctx context.Context, id access.Identity, in NewSession) (*Scorecard, error) {
	if err := s.authorize(id, access.OpWriteScores, access.OwnerResource(in.ArcherID)); err != nil {
		return nil, err
	}
	if in.ShootDate.IsZero() {
		return nil, apperrors.Validation("shoot_date is required")
	}

	// A switched-off division keeps its archers' old sessions but takes no new ones.
	archer, err := s.store.GetArcher(ctx, in.ArcherID)
	if err != nil {
		return nil, err
	}
	if !archer.Division.IsActive {
		return nil, apperrors.Validation("division %s is inactive; archer %d cannot start new sessions",
			archer.Division.Code, archer.ID)
	}
	if _, err := s.store.GetRound(ctx, in.RoundID); err != nil {
		return nil, err
	}

	sess := &models.Session{
		ArcherID:  in.ArcherID,
		RoundID:   in.RoundID,
		ShootDate: in.ShootDate,
		Status:    models.SessionStatusPreliminary,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	s.log.Info("session created", "session_id", sess.ID, "archer_id", sess.ArcherID, "round_id", sess.RoundID)
	return s.scorecard(ctx, sess.ID)
}

func (s *Service) scorecard(ctx context.Context, sessionID int64) (*Scorecard, error) {
	sess, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	totals, err := totalsOf(sess)
	if err != nil {
		return nil, err
	}
	return scorecardOf(sess, totals), nil
}

// GetScorecard returns a session with its totals. Owners and recorders may read any
// session; other signed-in archers only Final ones.
func (s *Service) GetScorecard(ctx context.Context, id access.Identity, sessionID int64) (*Scorecard, error) {
	sess, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(id, access.OpReadScores, access.SessionResource(*sess)); err != nil {
		return nil, err
	}
	totals, err := totalsOf(sess)
	if err != nil {
		return nil, err
	}
	return scorecardOf(sess, totals), nil
}

// ArrowInput is one arrow of an end. ArrowNo 0 means "the arrow's position in the list".
type ArrowInput struct {
	ArrowNo int    `json:"arrow_no"`
	Value   string `json:"value"`
}

// EndInput is the input of SaveEnd.
type EndInput struct {
	RoundRangeID int64        `json:"round_range_id"`
	EndNo        int          `json:"end_no"`
	Arrows       []ArrowInput `json:"arrows"`
}

// SaveEnd writes one end of a Preliminary session. Saving an end number again replaces its
// arrows. The end and its arrows are stored atomically and the new running total is
// published to live subscribers.
func (s *Service) SaveEnd(ctx context.Context, id access.Identity, sessionID int64, in EndInput) (*Scorecard, error) {
	sess, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(id, access.OpWriteScores, access.OwnerResource(sess.ArcherID)); err != nil {
		return nil, err
	}
	if sess.IsFinal() {
		return nil, apperrors.Validation("session %d is Final and can no longer change", sess.ID)
	}

	// The end must belong to one of the session's own ranges and fit within that range's
	// end count. Arrow values are checked after that, so the error names the first problem.
	ranges, err := s.store.LoadRoundRanges(ctx, sess.RoundID)
	if err != nil {
		return nil, err
	}
	var rr *models.RoundRange
	for i := range ranges {
		if ranges[i].ID == in.RoundRangeID {
			rr = &ranges[i]
		}
	}
	if rr == nil {
		return nil, apperrors.Validation("range %d is not part of round %d", in.RoundRangeID, sess.RoundID)
	}
	if in.EndNo < 1 || in.EndNo > rr.EndsPerRange {
		return nil, apperrors.Validation("end_no %d is outside 1..%d for the %dm range", in.EndNo, rr.EndsPerRange, rr.DistanceM)
	}
	arrows, err := parseArrows(in.Arrows)
	if err != nil {
		return nil, err
	}

	err = s.store.Tx(ctx, func(tx store.Store) error {
		// Status is checked again under the transaction so an approval that raced this
		// write cannot be followed by a changed end.
		current, err := tx.LoadSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.IsFinal() {
			return apperrors.Validation("session %d is Final and can no longer change", sessionID)
		}
		return tx.SaveEnd(ctx, sessionID, rr.ID, in.EndNo, arrows)
	})
	if err != nil {
		return nil, err
	}

	// Reload after the commit: the scorecard and the live update both show what is stored.
	sess, err = s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	totals, err := totalsOf(sess)
	if err != nil {
		return nil, err
	}
	s.metrics.EndSaved()
	s.log.Info("end saved",
		"session_id", sessionID,
		"round_range_id", rr.ID,
		"end_no", in.EndNo,
		"arrows", len(arrows),
		"member_id", id.MemberID,
	)
	s.publish(sess, totals)
	return scorecardOf(sess, totals), nil
}

func parseArrows(in []ArrowInput) ([]models.Arrow, error) {
	if len(in) == 0 {
		return nil, apperrors.Validation("an end needs at least one arrow")
	}
	if len(in) > models.ArrowsPerEnd {
		return nil, apperrors.Validation("an end holds at most %d arrows, got %d", models.ArrowsPerEnd, len(in))
	}
	arrows := make([]models.Arrow, 0, len(in))
	for i, a := range in {
		v, err := scoring.ParseArrowValue(a.Value)
		if err != nil {
			return nil, err
		}
		no := a.ArrowNo
		if no == 0 {
			no = i + 1
		}
		arrows = append(arrows, models.Arrow{ArrowNo: no, Value: v})
	}
	// TallyEnd rejects duplicate or out-of-range arrow numbers.
	if _, err := scoring.TallyEnd(arrows); err != nil {
		return nil, err
	}
	return arrows, nil
}

// PendingSession is one line of the approval queue.
type PendingSession struct {
	SessionID    int64  `json:"session_id"`
	ArcherID     int64  `json:"archer_id"`
	RoundID      int64  `json:"round_id"`
	RoundName    string `json:"round_name"`
	ShootDate    string `json:"shoot_date"`
	EndsShot     int    `json:"ends_shot"`
	EndsRequired int    `json:"ends_required"`
	GrandTotal   int    `json:"grand_total"`
	Complete     bool   `json:"complete"`
}

// ListPending lists Preliminary sessions, newest first. Recorder only.
func (s *Service) ListPending(ctx context.Context, id access.Identity) ([]PendingSession, error) {
	if err := s.authorize(id, access.OpApproveSession, access.Public); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, store.SessionFilter{Status: models.SessionStatusPreliminary})
	if err != nil {
		return nil, err
	}
	out := make([]PendingSession, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		totals, err := totalsOf(sess)
		if err != nil {
			return nil, err
		}
		p := PendingSession{
			SessionID:  sess.ID,
			ArcherID:   sess.ArcherID,
			RoundID:    sess.RoundID,
			RoundName:  sess.Round.Name,
			ShootDate:  formatDate(sess.ShootDate),
			GrandTotal: totals.GrandTotal,
			Complete:   totals.Complete,
		}
		for _, rt := range totals.PerRange {
			p.EndsShot += rt.EndsShot
			p.EndsRequired += rt.EndsRequired
		}
		out = append(out, p)
	}
	return out, nil
}

// FinalizeSession approves a complete session. The status change and the recomputation
// of every competition entry of the session commit together. Finalizing a Final session
// again changes nothing and returns the same totals.
func (s *Service) FinalizeSession(ctx context.Context, id access.Identity, sessionID int64) (*Scorecard, error) {
	sess, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(id, access.OpApproveSession, access.SessionResource(*sess)); err != nil {
		return nil, err
	}

	// Everything below happens in one transaction:
	//  1. re-read the status, since another recorder may have approved it meanwhile
	//  2. check every end of every range has been shot
	//  3. flip the status and re-rank each competition category the session is entered in
	// A failure at any step leaves the session Preliminary and the cached ranks untouched.
	already := false
	err = s.store.Tx(ctx, func(tx store.Store) error {
		current, err := tx.LoadSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if current.IsFinal() {
			already = true
			return nil
		}
		ranges, err := tx.LoadRoundRanges(ctx, current.RoundID)
		if err != nil {
			return err
		}
		if err := scoring.CheckComplete(*current, ranges); err != nil {
			return err
		}
		if err := tx.FinalizeSession(ctx, sessionID); err != nil {
			return err
		}
		return s.recomputeSessionEntries(ctx, tx, sessionID)
	})
	if err != nil {
		return nil, err
	}

	sess, err = s.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	totals, err := totalsOf(sess)
	if err != nil {
		return nil, err
	}
	// A repeated approval is not a new event: no metric, no log line, no live update.
	if already {
		return scorecardOf(sess, totals), nil
	}

	s.metrics.SessionFinalized()
	s.log.Info("session finalized",
		"session_id", sessionID,
		"grand_total", totals.GrandTotal,
		"member_id", id.MemberID,
	)
	s.publish(sess, totals)
	return scorecardOf(sess, totals), nil
}

// HistoryLine is one session of an archer's score history.
type HistoryLine struct {
	SessionID  int64                `json:"session_id"`
	RoundID    int64                `json:"round_id"`
	RoundName  string               `json:"round_name"`
	ShootDate  string               `json:"shoot_date"`
	Status     models.SessionStatus `json:"status"`
	GrandTotal int                  `json:"grand_total"`
	XCount     int                  `json:"x_count"`
	TenCount   int                  `json:"ten_count"`
	Complete   bool                 `json:"complete"`
}

// History lists an archer's sessions newest first. Owner or recorder.
func (s *Service) History(ctx context.Context, id access.Identity, archerID int64) ([]HistoryLine, error) {
	if err := s.authorize(id, access.OpReadScores, access.OwnerResource(archerID)); err != nil {
		return nil, err
	}
	if _, err := s.store.GetArcher(ctx, archerID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, store.SessionFilter{ArcherID: archerID})
	if err != nil {
		return nil, err
	}

	out := make([]HistoryLine, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		totals, err := totalsOf(sess)
		if err != nil {
			return nil, err
		}
		out = append(out, HistoryLine{
			SessionID:  sess.ID,
			RoundID:    sess.RoundID,
			RoundName:  sess.Round.Name,
			ShootDate:  formatDate(sess.ShootDate),
			Status:     sess.Status,
			GrandTotal: totals.GrandTotal,
			XCount:     totals.XCount,
			TenCount:   totals.TenCount,
			Complete:   totals.Complete,
		})
	}
	return out, nil
}

// PersonalBest is an archer's best Final score on one round.
type PersonalBest struct {
	RoundID    int64  `json:"round_id"`
	RoundName  string `json:"round_name"`
	SessionID  int64  `json:"session_id"`
	ShootDate  string `json:"shoot_date"`
	GrandTotal int    `json:"grand_total"`
	XCount     int    `json:"x_count"`
	TenCount   int    `json:"ten_count"`
}

// PersonalBests returns the best Final session per round, ordered by round name. Ties on
// total go to more Xs, then more 10s, then the earlier shoot.
func (s *Service) PersonalBests(ctx context.Context, id access.Identity, archerID int64) ([]PersonalBest, error) {
	if err := s.authorize(id, access.OpReadScores, access.OwnerResource(archerID)); err != nil {
		return nil, err
	}
	if _, err := s.store.GetArcher(ctx, archerID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, store.SessionFilter{ArcherID: archerID, Status: models.SessionStatusFinal})
	if err != nil {
		return nil, err
	}

	// Keep the best session seen so far per round.
	type candidate struct {
		sess     *models.Session
		standing scoring.Standing
	}
	best := map[int64]candidate{}
	for i := range sessions {
		sess := &sessions[i]
		totals, err := totalsOf(sess)
		if err != nil {
			return nil, err
		}
		c := candidate{sess: sess, standing: scoring.StandingFor(archerID, totals)}
		cur, ok := best[sess.RoundID]
		if !ok || beats(c.standing, c.sess, cur.standing, cur.sess) {
			best[sess.RoundID] = c
		}
	}

	out := make([]PersonalBest, 0, len(best))
	for roundID, c := range best {
		out = append(out, PersonalBest{
			RoundID:    roundID,
			RoundName:  c.sess.Round.Name,
			SessionID:  c.sess.ID,
			ShootDate:  formatDate(c.sess.ShootDate),
			GrandTotal: c.standing.FinalTotal,
			XCount:     c.standing.XCount,
			TenCount:   c.standing.TenCount,
		})
	}
	sortPersonalBests(out)
	return out, nil
}

func beats(a scoring.Standing, as *models.Session, b scoring.Standing, bs *models.Session) bool {
	if c := scoring.Compare(a, b); c != 0 {
		return c < 0
	}
	if !as.ShootDate.Equal(bs.ShootDate) {
		return as.ShootDate.Before(bs.ShootDate)
	}
	return as.ID < bs.ID
}

func sortPersonalBests(pbs []PersonalBest) {
	sort.Slice(pbs, func(i, j int) bool {
		if pbs[i].RoundName != pbs[j].RoundName {
			return pbs[i].RoundName < pbs[j].RoundName
		}
		return pbs[i].RoundID < pbs[j].RoundID
	})
}
