package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"alfredoptarigan/cv-matcher/internal/models"
)

func TestExportResultsXLSX(t *testing.T) {
	sim := 0.8123
	results := []models.MatchResult{
		{Filename: "a.pdf", Score: 88, Status: models.MatchScored, Explanation: "strong", Similarity: &sim, MatchedURL: "/matched/a.pdf"},
		{Filename: "b.pdf", Score: 0, Status: models.MatchExtractionFailed, Explanation: "corrupt"},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportResultsXLSX(&buf, results))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Rank", "Filename", "Score", "Status", "Similarity", "Explanation", "Matched URL"}, rows[0])
	assert.Equal(t, []string{"1", "a.pdf", "88", "scored", "0.812", "strong", "/matched/a.pdf"}, rows[1])
	assert.Equal(t, "extraction_failed", rows[2][3])
}
