package scoring

import (
	"sort"

	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
)

// RangeTotal is the score shot on one range of a round.
type RangeTotal struct {
	RoundRangeID int64 `json:"round_range_id"`
	DistanceM    int   `json:"distance_m"`
	FaceSize     int   `json:"face_size"`
	EndsShot     int   `json:"ends_shot"`
	EndsRequired int   `json:"ends_required"`
	Tally
}

// SessionTotal is the scorecard summary of a session.
type SessionTotal struct {
	SessionID  int64        `json:"session_id"`
	PerRange   []RangeTotal `json:"per_range"`
	GrandTotal int          `json:"grand_total"`
	XCount     int          `json:"x_count"`
	TenCount   int          `json:"ten_count"`
	Arrows     int          `json:"arrows"`
	Complete   bool         `json:"complete"`
}

// ComputeSessionTotal scores a session against the ranges of its round.
//
// Every end must belong to one of ranges and carry an end number inside that range.
// A range with no ends scores zero while the session is Preliminary; a Final session must
// be complete (see CheckComplete) or a validation error is returned.
// PerRange follows the order of ranges.
func ComputeSessionTotal(session models.Session, ranges []models.RoundRange) (SessionTotal, error) {
	total := SessionTotal{SessionID: session.ID, PerRange: make([]RangeTotal, len(ranges))}

	index := make(map[int64]int, len(ranges))
	for i, rr := range ranges {
		index[rr.ID] = i
		total.PerRange[i] = RangeTotal{
			RoundRangeID: rr.ID,
			DistanceM:    rr.DistanceM,
			FaceSize:     rr.FaceSize,
			EndsRequired: rr.EndsPerRange,
		}
	}

	type endKey struct {
		rangeID int64
		endNo   int
	}
	seen := make(map[endKey]bool, len(session.Ends))

	for _, end := range session.Ends {
		i, ok := index[end.RoundRangeID]
		if !ok {
			return SessionTotal{}, apperrors.Validation(
				"end %d of session %d references range %d which is not part of round %d",
				end.EndNo, session.ID, end.RoundRangeID, session.RoundID)
		}
		rr := ranges[i]
		if end.EndNo < 1 || end.EndNo > rr.EndsPerRange || end.EndNo > models.MaxEndNo {
			return SessionTotal{}, apperrors.Validation(
				"end_no %d is outside 1..%d for range %d", end.EndNo, rr.EndsPerRange, rr.ID)
		}
		k := endKey{end.RoundRangeID, end.EndNo}
		if seen[k] {
			return SessionTotal{}, apperrors.Validation(
				"end %d of range %d appears twice in session %d", end.EndNo, rr.ID, session.ID)
		}
		seen[k] = true

		t, err := TallyEnd(end.Arrows)
		if err != nil {
			return SessionTotal{}, err
		}
		total.PerRange[i].EndsShot++
		total.PerRange[i].add(t)
	}

	complete := len(ranges) > 0
	for _, rt := range total.PerRange {
		total.GrandTotal += rt.Total
		total.XCount += rt.XCount
		total.TenCount += rt.TenCount
		total.Arrows += rt.Arrows
		if rt.EndsShot < rt.EndsRequired || rt.Arrows < rt.EndsRequired*models.ArrowsPerEnd {
			complete = false
		}
	}
	total.Complete = complete

	if session.IsFinal() {
		if err := CheckComplete(session, ranges); err != nil {
			return SessionTotal{}, err
		}
	}
	return total, nil
}

// CheckComplete reports, as a validation error, the first gap that keeps a session from
// being finalized: a round with no ranges, a missing end, or an end short of six arrows.
func CheckComplete(session models.Session, ranges []models.RoundRange) error {
	if len(ranges) == 0 {
		return apperrors.Validation("round %d has no ranges to shoot", session.RoundID)
	}

	arrowsByEnd := make(map[int64]map[int]int, len(ranges))
	for _, end := range session.Ends {
		if arrowsByEnd[end.RoundRangeID] == nil {
			arrowsByEnd[end.RoundRangeID] = make(map[int]int)
		}
		arrowsByEnd[end.RoundRangeID][end.EndNo] = len(end.Arrows)
	}

	for _, rr := range ranges {
		for endNo := 1; endNo <= rr.EndsPerRange; endNo++ {
			n, ok := arrowsByEnd[rr.ID][endNo]
			if !ok {
				return apperrors.Validation("session %d is missing end %d of the %dm range",
					session.ID, endNo, rr.DistanceM)
			}
			if n != models.ArrowsPerEnd {
				return apperrors.Validation("end %d of the %dm range has %d of %d arrows",
					endNo, rr.DistanceM, n, models.ArrowsPerEnd)
			}
		}
	}
	return nil
}

// SortRanges orders ranges the way a round definition is read: nearest distance first,
// then by id so ranges at the same distance keep their creation order.
func SortRanges(ranges []models.RoundRange) {
	sort.SliceStable(ranges, func(i, j int) bool {
		if ranges[i].DistanceM != ranges[j].DistanceM {
			return ranges[i].DistanceM < ranges[j].DistanceM
		}
		return ranges[i].ID < ranges[j].ID
	})
}

// RoundSize returns the number of ends and arrows a full round requires.
func RoundSize(ranges []models.RoundRange) (ends, arrows int) {
	for _, rr := range ranges {
		ends += rr.EndsPerRange
	}
	return ends, ends * models.ArrowsPerEnd
}
