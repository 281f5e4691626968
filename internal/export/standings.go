// Package export writes competition results as an Excel workbook for the club noticeboard.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/trentd187/archery-club/internal/service"
)

const summarySheet = "Summary"

var standingsHeader = []any{"Rank", "Archer", "Session", "Total", "X", "10"}

// SheetName is the worksheet a category's standings are written to, e.g. "Open F R".
func SheetName(cat service.CategoryResult) string {
	name := fmt.Sprintf("%s %s %s", cat.AgeClass, cat.Gender, cat.Division)
	// Excel forbids these in sheet names and caps them at 31 characters.
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, name)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

// Standings writes res to w: a summary sheet first, then one sheet per category with
// its ranked entries.
func Standings(w io.Writer, res *service.CompetitionResults) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	summary := [][]any{
		{"Competition", res.Name},
		{"Round", res.RoundID},
		{"Dates", res.StartDate + " to " + res.EndDate},
		{},
		{"Category", "Entries", "Leader", "Top score"},
	}
	for _, cat := range res.Categories {
		line := []any{SheetName(cat), len(cat.Standings)}
		if len(cat.Standings) > 0 {
			line = append(line, cat.Standings[0].ArcherID, cat.Standings[0].FinalTotal)
		}
		summary = append(summary, line)
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}

	for _, cat := range res.Categories {
		sheet := SheetName(cat)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet %q: %w", sheet, err)
		}
		rows := [][]any{standingsHeader}
		for _, s := range cat.Standings {
			rows = append(rows, []any{s.Rank, s.ArcherID, s.SessionID, s.FinalTotal, s.XCount, s.TenCount})
		}
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
