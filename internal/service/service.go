// Package service runs the club's scoring operations. Every operation takes the caller's
// resolved identity, asks the access gate first, then loads through the store and derives
// totals and rankings with the scoring engine. Writes that must be seen together run in one
// store transaction.
//
// Handlers and the operator CLI both drive this package; neither talks to the store directly.
package service

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/trentd187/archery-club/internal/access"
	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/logging"
	"github.com/trentd187/archery-club/internal/metrics"
	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/scoring"
	"github.com/trentd187/archery-club/internal/store"
)

// Publisher receives a session's running total after each change. live.Hub implements it.
type Publisher interface {
	Publish(sessionID int64, data []byte)
}

// Deps are the collaborators of a Service. Logger, Metrics and Publisher may be nil.
type Deps struct {
	Store     store.Store
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Publisher Publisher
	// Policy decides how tied standings are ranked; empty means competition ranking.
	Policy scoring.Policy
}

// Service is safe for concurrent use; it keeps no state between calls.
type Service struct {
	store   store.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	pub     Publisher
	policy  scoring.Policy
}

func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	policy := d.Policy
	if policy == "" {
		policy = scoring.PolicyCompetition
	}
	return &Service{
		store:   d.Store,
		log:     logger,
		metrics: d.Metrics,
		pub:     d.Publisher,
		policy:  policy,
	}
}

// authorize is the gate every operation passes before touching data.
func (s *Service) authorize(id access.Identity, op access.Operation, res access.Resource) error {
	if access.Can(id, op, res) {
		return nil
	}
	s.metrics.Denied(string(op))
	s.log.Warn("operation denied",
		"operation", op,
		"role", id.Role,
		"member_id", id.MemberID,
		"owner_archer_id", res.OwnerArcherID,
	)
	if !id.Authenticated() {
		return apperrors.PermissionDenied("sign in to %s", describe(op))
	}
	return apperrors.PermissionDenied("you may not %s", describe(op))
}

func describe(op access.Operation) string {
	switch op {
	case access.OpReadScores:
		return "read these scores"
	case access.OpWriteScores:
		return "record scores for this archer"
	case access.OpApproveSession:
		return "approve sessions"
	case access.OpManageReference:
		return "manage club reference data"
	default:
		return "read club results"
	}
}

// LiveUpdate is what subscribers of a session receive after every change.
type LiveUpdate struct {
	SessionID int64                `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Totals    scoring.SessionTotal `json:"totals"`
	At        time.Time            `json:"at"`
}

func (s *Service) publish(sess *models.Session, totals scoring.SessionTotal) {
	if s.pub == nil {
		return
	}
	data, err := json.Marshal(LiveUpdate{
		SessionID: sess.ID,
		Status:    sess.Status,
		Totals:    totals,
		At:        time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("encode live update", "session_id", sess.ID, "error", err)
		return
	}
	s.pub.Publish(sess.ID, data)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
