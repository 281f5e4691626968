package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trentd187/archery-club/internal/models"
	"github.com/trentd187/archery-club/internal/scoring"
	"github.com/trentd187/archery-club/internal/service"
)

func TestStandings(t *testing.T) {
	res := &service.CompetitionResults{
		CompetitionID: 3,
		Name:          "Club Champs",
		RoundID:       1,
		StartDate:     "2025-06-01",
		EndDate:       "2025-06-02",
		Categories: []service.CategoryResult{
			{
				CategoryID: 7, AgeClass: "Open", Gender: models.GenderFemale, Division: models.DivisionRecurve,
				Standings: []scoring.Standing{
					{SessionID: 11, ArcherID: 4, FinalTotal: 330, XCount: 5, TenCount: 12, Rank: 1},
					{SessionID: 12, ArcherID: 5, FinalTotal: 301, XCount: 2, TenCount: 6, Rank: 2},
				},
			},
			{CategoryID: 8, AgeClass: "U18", Gender: models.GenderMale, Division: models.DivisionCompound, Standings: []scoring.Standing{}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Standings(&buf, res))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Open F R", "U18 M C"}, f.GetSheetList())

	rows, err := f.GetRows("Open F R")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Rank", "Archer", "Session", "Total", "X", "10"}, rows[0])
	assert.Equal(t, []string{"1", "4", "11", "330", "5", "12"}, rows[1])
	assert.Equal(t, []string{"2", "5", "12", "301", "2", "6"}, rows[2])

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"Competition", "Club Champs"}, summary[0])
	assert.Equal(t, []string{"Open F R", "2", "4", "330"}, summary[5])
	assert.Equal(t, []string{"U18 M C", "0"}, summary[6])
}

func TestSheetName(t *testing.T) {
	long := service.CategoryResult{AgeClass: "Veterans/Masters over seventy", Gender: models.GenderMale, Division: models.DivisionRecurveBarebow}
	name := SheetName(long)
	assert.LessOrEqual(t, len(name), 31)
	assert.NotContains(t, name, "/")
}
