// Package scoring is the aggregation engine: it turns raw end/arrow rows into range and
// session totals, ranks competition entries, and buckets archers into categories.
// Everything here is pure over its inputs, so it is safe to call from any goroutine.
package scoring

import (
	"strings"

	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
)

// MaxEndScore is the highest possible end: six arrows of ten.
const MaxEndScore = models.ArrowsPerEnd * 10

var arrowScores = map[models.ArrowValue]int{
	models.ArrowX:     10,
	models.ArrowTen:   10,
	models.ArrowNine:  9,
	models.ArrowEight: 8,
	models.ArrowSeven: 7,
	models.ArrowSix:   6,
	models.ArrowFive:  5,
	models.ArrowFour:  4,
	models.ArrowThree: 3,
	models.ArrowTwo:   2,
	models.ArrowOne:   1,
	models.ArrowMiss:  0,
}

// ParseArrowValue normalizes score-sheet input ("x", " m ", "10") into an ArrowValue.
func ParseArrowValue(s string) (models.ArrowValue, error) {
	v := models.ArrowValue(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := arrowScores[v]; !ok {
		return "", apperrors.Validation("arrow value %q is not one of X,10..1,M", s)
	}
	return v, nil
}

// ArrowScore returns the points an arrow value is worth.
func ArrowScore(v models.ArrowValue) (int, error) {
	score, ok := arrowScores[v]
	if !ok {
		return 0, apperrors.Validation("arrow value %q is not one of X,10..1,M", string(v))
	}
	return score, nil
}

// Tally is the score of a group of arrows together with its tie-break counts.
// TenCount counts plain "10" arrows only; an X is counted in XCount.
type Tally struct {
	Total    int `json:"total"`
	XCount   int `json:"x_count"`
	TenCount int `json:"ten_count"`
	Arrows   int `json:"arrows"`
}

func (t *Tally) add(o Tally) {
	t.Total += o.Total
	t.XCount += o.XCount
	t.TenCount += o.TenCount
	t.Arrows += o.Arrows
}

// TallyEnd validates one end's arrows and scores them.
// An end holds at most six arrows numbered 1..6 with no repeats; an end being filled in
// may hold fewer.
func TallyEnd(arrows []models.Arrow) (Tally, error) {
	var t Tally
	if len(arrows) > models.ArrowsPerEnd {
		return t, apperrors.Validation("an end holds at most %d arrows, got %d", models.ArrowsPerEnd, len(arrows))
	}
	seen := make(map[int]bool, len(arrows))
	for _, a := range arrows {
		if a.ArrowNo < 1 || a.ArrowNo > models.ArrowsPerEnd {
			return t, apperrors.Validation("arrow_no %d is outside 1..%d", a.ArrowNo, models.ArrowsPerEnd)
		}
		if seen[a.ArrowNo] {
			return t, apperrors.Validation("arrow_no %d appears twice in the same end", a.ArrowNo)
		}
		seen[a.ArrowNo] = true

		score, err := ArrowScore(a.Value)
		if err != nil {
			return t, err
		}
		t.Total += score
		t.Arrows++
		switch a.Value {
		case models.ArrowX:
			t.XCount++
		case models.ArrowTen:
			t.TenCount++
		}
	}
	// Unreachable with six arrows of at most ten, but it is the invariant stored totals rely on.
	if t.Total > MaxEndScore {
		return t, apperrors.Validation("end total %d exceeds %d", t.Total, MaxEndScore)
	}
	return t, nil
}
