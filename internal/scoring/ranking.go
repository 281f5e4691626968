package scoring

import (
	"fmt"
	"sort"
)

// Policy decides how tied standings consume rank numbers.
type Policy string

const (
	// PolicyCompetition is "1224" ranking: ties share a rank and the next distinct
	// score skips the places the tie used (1, 1, 3).
	PolicyCompetition Policy = "competition"
	// PolicyDense is "1223" ranking: the next distinct score takes the next number (1, 1, 2).
	PolicyDense Policy = "dense"
)

// ParsePolicy validates a configured ranking policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCompetition, PolicyDense:
		return p, nil
	default:
		return "", fmt.Errorf("unknown ranking policy %q (want %q or %q)", s, PolicyCompetition, PolicyDense)
	}
}

// Standing is one ranked line of a results table. For a competition category it is a
// session; for the championship ladder SessionID is zero and the totals are summed per archer.
type Standing struct {
	SessionID  int64 `json:"session_id,omitempty"`
	ArcherID   int64 `json:"archer_id"`
	FinalTotal int   `json:"final_total"`
	XCount     int   `json:"x_count"`
	TenCount   int   `json:"ten_count"`
	Rank       int   `json:"rank"`
}

// Compare orders standings best first: higher total, then more Xs, then more 10s.
// It returns a negative number when a ranks ahead of b and zero when they tie.
func Compare(a, b Standing) int {
	switch {
	case a.FinalTotal != b.FinalTotal:
		return b.FinalTotal - a.FinalTotal
	case a.XCount != b.XCount:
		return b.XCount - a.XCount
	default:
		return b.TenCount - a.TenCount
	}
}

// Rank sorts standings best first and assigns ranks under policy. Standings that tie on
// every key share a rank and are listed by session id, then archer id, so the output is
// deterministic. The input slice is not modified.
func Rank(standings []Standing, policy Policy) []Standing {
	out := make([]Standing, len(standings))
	copy(out, standings)

	sort.SliceStable(out, func(i, j int) bool {
		if c := Compare(out[i], out[j]); c != 0 {
			return c < 0
		}
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].ArcherID < out[j].ArcherID
	})

	rank := 0
	for i := range out {
		if i == 0 || Compare(out[i-1], out[i]) != 0 {
			if policy == PolicyDense {
				rank++
			} else {
				rank = i + 1
			}
		}
		out[i].Rank = rank
	}
	return out
}

// StandingFor turns a session total into an unranked standing.
func StandingFor(archerID int64, t SessionTotal) Standing {
	return Standing{
		SessionID:  t.SessionID,
		ArcherID:   archerID,
		FinalTotal: t.GrandTotal,
		XCount:     t.XCount,
		TenCount:   t.TenCount,
	}
}
