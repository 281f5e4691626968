package scoring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
)

func arrows(values ...models.ArrowValue) []models.Arrow {
	out := make([]models.Arrow, len(values))
	for i, v := range values {
		out[i] = models.Arrow{ArrowNo: i + 1, Value: v}
	}
	return out
}

func six(v models.ArrowValue) []models.Arrow {
	return arrows(v, v, v, v, v, v)
}

func fullRange(rr models.RoundRange, v models.ArrowValue) []models.End {
	ends := make([]models.End, rr.EndsPerRange)
	for i := range ends {
		ends[i] = models.End{RoundRangeID: rr.ID, EndNo: i + 1, Arrows: six(v)}
	}
	return ends
}

func TestParseArrowValue(t *testing.T) {
	for in, want := range map[string]models.ArrowValue{"x": models.ArrowX, " m ": models.ArrowMiss, "10": models.ArrowTen, "7": models.ArrowSeven} {
		got, err := ParseArrowValue(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "11", "0", "XX", "-1"} {
		_, err := ParseArrowValue(in)
		assert.True(t, apperrors.HasKind(err, apperrors.KindValidation), "input %q", in)
	}
}

func TestTallyEnd(t *testing.T) {
	t.Run("counts X and 10 separately", func(t *testing.T) {
		got, err := TallyEnd(arrows("X", "10", "10", "9", "M", "1"))
		require.NoError(t, err)
		assert.Equal(t, Tally{Total: 40, XCount: 1, TenCount: 2, Arrows: 6}, got)
	})

	t.Run("partial end", func(t *testing.T) {
		got, err := TallyEnd(arrows("8", "8"))
		require.NoError(t, err)
		assert.Equal(t, 16, got.Total)
		assert.Equal(t, 2, got.Arrows)
	})

	tests := []struct {
		name   string
		arrows []models.Arrow
	}{
		{"too many arrows", append(six("9"), models.Arrow{ArrowNo: 6, Value: "9"})},
		{"duplicate arrow_no", []models.Arrow{{ArrowNo: 2, Value: "9"}, {ArrowNo: 2, Value: "8"}}},
		{"arrow_no out of range", []models.Arrow{{ArrowNo: 7, Value: "9"}}},
		{"arrow_no zero", []models.Arrow{{ArrowNo: 0, Value: "9"}}},
		{"unknown value", []models.Arrow{{ArrowNo: 1, Value: "11"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TallyEnd(tt.arrows)
			assert.True(t, apperrors.HasKind(err, apperrors.KindValidation), "got %v", err)
		})
	}
}

func TestComputeSessionTotal_AllNines(t *testing.T) {
	rr := models.RoundRange{ID: 1, RoundID: 1, DistanceM: 30, FaceSize: 80, EndsPerRange: 6}
	for n := 0; n <= rr.EndsPerRange; n++ {
		session := models.Session{ID: 5, RoundID: 1, Status: models.SessionStatusPreliminary}
		session.Ends = fullRange(rr, "9")[:n]

		got, err := ComputeSessionTotal(session, []models.RoundRange{rr})
		require.NoError(t, err)
		assert.Equal(t, 54*n, got.GrandTotal)
		assert.Zero(t, got.XCount)
		assert.Equal(t, n == rr.EndsPerRange, got.Complete)
	}
}

func TestComputeSessionTotal_WA70(t *testing.T) {
	wa70 := models.RoundRange{ID: 70, RoundID: 3, DistanceM: 70, FaceSize: 122, EndsPerRange: 6}
	ends := fullRange(wa70, "10")
	ends[5].Arrows[5].Value = models.ArrowMiss

	session := models.Session{ID: 9, RoundID: 3, Status: models.SessionStatusFinal, Ends: ends}
	got, err := ComputeSessionTotal(session, []models.RoundRange{wa70})
	require.NoError(t, err)

	want := SessionTotal{
		SessionID: 9,
		PerRange: []RangeTotal{{
			RoundRangeID: 70, DistanceM: 70, FaceSize: 122, EndsShot: 6, EndsRequired: 6,
			Tally: Tally{Total: 350, TenCount: 35, Arrows: 36},
		}},
		GrandTotal: 350,
		TenCount:   35,
		Arrows:     36,
		Complete:   true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ComputeSessionTotal mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeSessionTotal_PerRangeOrder(t *testing.T) {
	ranges := []models.RoundRange{
		{ID: 10, RoundID: 1, DistanceM: 50, FaceSize: 122, EndsPerRange: 5},
		{ID: 11, RoundID: 1, DistanceM: 30, FaceSize: 80, EndsPerRange: 6},
	}
	session := models.Session{ID: 1, RoundID: 1, Status: models.SessionStatusPreliminary, Ends: []models.End{
		{RoundRangeID: 11, EndNo: 2, Arrows: six("X")},
		{RoundRangeID: 10, EndNo: 1, Arrows: six("7")},
	}}

	got, err := ComputeSessionTotal(session, ranges)
	require.NoError(t, err)
	require.Len(t, got.PerRange, 2)
	assert.Equal(t, 42, got.PerRange[0].Total)
	assert.Equal(t, 60, got.PerRange[1].Total)
	assert.Equal(t, 6, got.XCount)
	assert.Equal(t, 102, got.GrandTotal)
	assert.False(t, got.Complete)
}

func TestComputeSessionTotal_Rejects(t *testing.T) {
	rr := models.RoundRange{ID: 1, RoundID: 1, DistanceM: 18, FaceSize: 80, EndsPerRange: 5}

	tests := []struct {
		name string
		ends []models.End
	}{
		{"end from another round", []models.End{{RoundRangeID: 99, EndNo: 1, Arrows: six("9")}}},
		{"end beyond ends_per_range", []models.End{{RoundRangeID: 1, EndNo: 6, Arrows: six("9")}}},
		{"duplicate end", []models.End{{RoundRangeID: 1, EndNo: 2}, {RoundRangeID: 1, EndNo: 2}}},
		{"bad arrow", []models.End{{RoundRangeID: 1, EndNo: 1, Arrows: arrows("12")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := models.Session{ID: 1, RoundID: 1, Status: models.SessionStatusPreliminary, Ends: tt.ends}
			_, err := ComputeSessionTotal(session, []models.RoundRange{rr})
			assert.True(t, apperrors.HasKind(err, apperrors.KindValidation), "got %v", err)
		})
	}
}

func TestComputeSessionTotal_FinalMustBeComplete(t *testing.T) {
	ranges := []models.RoundRange{
		{ID: 1, RoundID: 1, DistanceM: 60, FaceSize: 122, EndsPerRange: 5},
		{ID: 2, RoundID: 1, DistanceM: 50, FaceSize: 122, EndsPerRange: 5},
	}
	onlyFirst := fullRange(ranges[0], "8")

	prelim := models.Session{ID: 1, RoundID: 1, Status: models.SessionStatusPreliminary, Ends: onlyFirst}
	got, err := ComputeSessionTotal(prelim, ranges)
	require.NoError(t, err)
	assert.Equal(t, 240, got.GrandTotal)
	assert.Zero(t, got.PerRange[1].Total)

	final := prelim
	final.Status = models.SessionStatusFinal
	_, err = ComputeSessionTotal(final, ranges)
	assert.True(t, apperrors.HasKind(err, apperrors.KindValidation))

	short := append(onlyFirst, fullRange(ranges[1], "8")...)
	short[len(short)-1].Arrows = short[len(short)-1].Arrows[:5]
	final.Ends = short
	_, err = ComputeSessionTotal(final, ranges)
	assert.ErrorContains(t, err, "5 of 6 arrows")
}

func TestCheckComplete_EmptyRound(t *testing.T) {
	err := CheckComplete(models.Session{ID: 1, RoundID: 4}, nil)
	assert.True(t, apperrors.HasKind(err, apperrors.KindValidation))
}

func TestSortRangesAndRoundSize(t *testing.T) {
	ranges := []models.RoundRange{
		{ID: 3, DistanceM: 90, EndsPerRange: 6},
		{ID: 1, DistanceM: 30, EndsPerRange: 6},
		{ID: 2, DistanceM: 50, EndsPerRange: 5},
		{ID: 4, DistanceM: 30, EndsPerRange: 5},
	}
	SortRanges(ranges)
	var ids []int64
	for _, rr := range ranges {
		ids = append(ids, rr.ID)
	}
	assert.Equal(t, []int64{1, 4, 2, 3}, ids)

	ends, total := RoundSize(ranges)
	assert.Equal(t, 22, ends)
	assert.Equal(t, 132, total)
}

func TestRank(t *testing.T) {
	input := []Standing{
		{SessionID: 4, FinalTotal: 300, XCount: 2, TenCount: 10},
		{SessionID: 1, FinalTotal: 320, XCount: 1, TenCount: 5},
		{SessionID: 3, FinalTotal: 300, XCount: 2, TenCount: 10},
		{SessionID: 2, FinalTotal: 300, XCount: 2, TenCount: 11},
		{SessionID: 5, FinalTotal: 300, XCount: 3, TenCount: 0},
		{SessionID: 6, FinalTotal: 250},
	}

	type row struct {
		SessionID int64
		Rank      int
	}
	flatten := func(s []Standing) []row {
		out := make([]row, len(s))
		for i, st := range s {
			out[i] = row{st.SessionID, st.Rank}
		}
		return out
	}

	t.Run("competition ranking skips after ties", func(t *testing.T) {
		got := flatten(Rank(input, PolicyCompetition))
		want := []row{{1, 1}, {5, 2}, {2, 3}, {3, 4}, {4, 4}, {6, 6}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("dense ranking does not skip", func(t *testing.T) {
		got := flatten(Rank(input, PolicyDense))
		want := []row{{1, 1}, {5, 2}, {2, 3}, {3, 4}, {4, 4}, {6, 5}}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})

	t.Run("input untouched", func(t *testing.T) {
		Rank(input, PolicyDense)
		assert.Equal(t, int64(4), input[0].SessionID)
		assert.Zero(t, input[0].Rank)
	})

	t.Run("total order", func(t *testing.T) {
		ranked := Rank(input, PolicyCompetition)
		for i := 1; i < len(ranked); i++ {
			c := Compare(ranked[i-1], ranked[i])
			assert.LessOrEqual(t, c, 0)
			if c == 0 {
				assert.Equal(t, ranked[i-1].Rank, ranked[i].Rank)
			} else {
				assert.Less(t, ranked[i-1].Rank, ranked[i].Rank)
			}
		}
	})
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("dense")
	require.NoError(t, err)
	assert.Equal(t, PolicyDense, p)

	_, err = ParsePolicy("olympic")
	assert.Error(t, err)
}

func TestEligibleCategory(t *testing.T) {
	const policyYear = 2025
	ageClasses := []models.AgeClass{
		{ID: 1, Code: "U18", MinBirthYear: 2008, MaxBirthYear: 2012, PolicyYear: policyYear},
		{ID: 2, Code: "Open", MinBirthYear: 1966, MaxBirthYear: 2007, PolicyYear: policyYear},
		{ID: 3, Code: "50+", MinBirthYear: 1900, MaxBirthYear: 1965, PolicyYear: policyYear},
		{ID: 4, Code: "Open", MinBirthYear: 1960, MaxBirthYear: 2006, PolicyYear: 2020},
	}
	var categories []models.Category
	var id int64
	for _, ac := range ageClasses {
		for _, g := range []int64{1, 2} {
			for _, d := range []int64{1, 2} {
				id++
				categories = append(categories, models.Category{ID: id, AgeClassID: ac.ID, GenderID: g, DivisionID: d})
			}
		}
	}

	t.Run("every covered birth year maps to exactly one category", func(t *testing.T) {
		for birth := 1900; birth <= 2012; birth++ {
			for _, g := range []int64{1, 2} {
				for _, d := range []int64{1, 2} {
					archer := models.Archer{ID: 1, BirthYear: birth, GenderID: g, DivisionID: d}
					got, err := EligibleCategory(archer, policyYear, ageClasses, categories)
					require.NoError(t, err, "birth %d", birth)
					assert.Equal(t, g, got.GenderID)
					assert.Equal(t, d, got.DivisionID)
					assert.NotEqual(t, int64(4), got.AgeClassID)
				}
			}
		}
	})

	t.Run("birth year outside every window", func(t *testing.T) {
		_, err := EligibleCategory(models.Archer{BirthYear: 2015, GenderID: 1, DivisionID: 1}, policyYear, ageClasses, categories)
		assert.True(t, apperrors.HasKind(err, apperrors.KindNoMatchingCategory))
	})

	t.Run("unknown policy year", func(t *testing.T) {
		_, err := EligibleCategory(models.Archer{BirthYear: 1990, GenderID: 1, DivisionID: 1}, 1999, ageClasses, categories)
		assert.True(t, apperrors.HasKind(err, apperrors.KindNoMatchingCategory))
	})

	t.Run("no category row for division", func(t *testing.T) {
		_, err := EligibleCategory(models.Archer{BirthYear: 1990, GenderID: 1, DivisionID: 3}, policyYear, ageClasses, categories)
		assert.True(t, apperrors.HasKind(err, apperrors.KindNoMatchingCategory))
	})

	t.Run("overlapping windows", func(t *testing.T) {
		overlap := append([]models.AgeClass{{ID: 9, Code: "U21", MinBirthYear: 2005, MaxBirthYear: 2010, PolicyYear: policyYear}}, ageClasses...)
		_, err := EligibleCategory(models.Archer{BirthYear: 2009, GenderID: 1, DivisionID: 1}, policyYear, overlap, categories)
		assert.True(t, apperrors.HasKind(err, apperrors.KindValidation))
	})
}
