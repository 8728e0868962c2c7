package services

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"alfredoptarigan/cv-matcher/internal/models"
)

const exportSheet = "Matches"

var exportHeader = []interface{}{"Rank", "Filename", "Score", "Status", "Similarity", "Explanation", "Matched URL"}

// ExportResultsXLSX writes ranked results as a single-sheet workbook.
func ExportResultsXLSX(w io.Writer, results []models.MatchResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range results {
		similarity := ""
		if r.Similarity != nil {
			similarity = fmt.Sprintf("%.3f", *r.Similarity)
		}
		row := []interface{}{i + 1, r.Filename, r.Score, string(r.Status), similarity, r.Explanation, r.MatchedURL}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(exportSheet, "B", "B", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(exportSheet, "F", "F", 80); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
