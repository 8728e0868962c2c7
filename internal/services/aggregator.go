package services

import (
	"fmt"
	"sort"

	"alfredoptarigan/cv-matcher/internal/models"
)

type OutcomeKind int

const (
	OutcomeScored OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

type FailureKind int

const (
	FailureExtraction FailureKind = iota
	FailureSize
	FailureParse
	FailureProvider
	FailureCancelled
)

// Outcome is what per-document processing produced, before normalisation.
type Outcome struct {
	Index      int
	DocumentID string
	Filename   string
	Kind       OutcomeKind
	Failure    FailureKind
	Score      int
	Reason     string
	Similarity *float64
	Threshold  float64
	MatchedURL string
}

// Aggregate turns outcomes into results ordered by score, highest first. Equal
// scores keep submission order.
func Aggregate(outcomes []Outcome) []models.MatchResult {
	ordered := make([]Outcome, len(outcomes))
	copy(ordered, outcomes)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	results := make([]models.MatchResult, 0, len(ordered))
	for _, o := range ordered {
		results = append(results, toResult(o))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

func toResult(o Outcome) models.MatchResult {
	r := models.MatchResult{
		DocumentID: o.DocumentID,
		Filename:   o.Filename,
		Similarity: o.Similarity,
		MatchedURL: o.MatchedURL,
	}

	switch o.Kind {
	case OutcomeScored:
		r.Status = models.MatchScored
		r.Score = Canonical(float64(o.Score), 100)
		r.Explanation = nonEmpty(o.Reason, missingExplanation)
	case OutcomeSkipped:
		sim := 0.0
		if o.Similarity != nil {
			sim = *o.Similarity
		}
		r.Status = models.MatchSkippedLowSimilarity
		r.Explanation = fmt.Sprintf("Skipped: semantic similarity %.3f is below the threshold %.2f.", sim, o.Threshold)
	case OutcomeFailed:
		r.Status = failureStatus(o.Failure)
		r.Explanation = nonEmpty(o.Reason, failureDefault(o.Failure))
	default:
		panic(fmt.Sprintf("unknown outcome kind %d", o.Kind))
	}
	return r
}

func failureStatus(k FailureKind) models.MatchStatus {
	switch k {
	case FailureExtraction:
		return models.MatchExtractionFailed
	case FailureSize:
		return models.MatchSizeRejected
	case FailureParse:
		return models.MatchParseError
	case FailureProvider:
		return models.MatchProviderError
	case FailureCancelled:
		return models.MatchCancelled
	default:
		panic(fmt.Sprintf("unknown failure kind %d", k))
	}
}

func failureDefault(k FailureKind) string {
	switch k {
	case FailureExtraction:
		return "Could not extract text from the document."
	case FailureSize:
		return "The document exceeds the maximum allowed size."
	case FailureParse:
		return "Could not parse the response from the AI service."
	case FailureProvider:
		return "Failed to get AI response."
	case FailureCancelled:
		return "The request was cancelled before this document was processed."
	default:
		return "Unknown failure."
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// outcomeFromScore maps a scorer verdict onto an Outcome.
func outcomeFromScore(base Outcome, s ScoreOutcome) Outcome {
	base.Score = s.Score
	base.Reason = s.Explanation
	switch s.Status {
	case models.MatchScored:
		base.Kind = OutcomeScored
	case models.MatchParseError:
		base.Kind, base.Failure = OutcomeFailed, FailureParse
	default:
		base.Kind, base.Failure = OutcomeFailed, FailureProvider
	}
	return base
}
