package models

type MatchStatus string

const (
	MatchScored               MatchStatus = "scored"
	MatchSkippedLowSimilarity MatchStatus = "skipped_low_similarity"
	MatchParseError           MatchStatus = "parse_error"
	MatchExtractionFailed     MatchStatus = "extraction_failed"
	MatchSizeRejected         MatchStatus = "size_rejected"
	MatchProviderError        MatchStatus = "provider_error"
	MatchCancelled            MatchStatus = "cancelled"
)

// MatchResult is the outcome for one document against one job description.
// Score is always within 0-100.
type MatchResult struct {
	DocumentID  string      `json:"document_id"`
	Filename    string      `json:"filename"`
	Score       int         `json:"score"`
	Explanation string      `json:"explanation"`
	Status      MatchStatus `json:"status"`
	Similarity  *float64    `json:"similarity,omitempty"`
	MatchedURL  string      `json:"matched_url,omitempty"`
}

type MatchResponse struct {
	Results []MatchResult `json:"matches"`
	Total   int           `json:"total"`
}
