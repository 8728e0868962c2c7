package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredParser(t *testing.T) {
	p := NewResponseParser(ModeStructured)

	cases := []struct {
		name        string
		raw         string
		score       float64
		explanation string
	}{
		{"plain", `{"match_score": 82, "explanation": "Strong Go background."}`, 82, "Strong Go background."},
		{"fenced", "```json\n{\"match_score\": 70, \"explanation\": \"ok\"}\n```", 70, "ok"},
		{"chatter", "Sure! Here is the result:\n{\"match_score\": 55.5, \"explanation\": \"partial\"}\nThanks.", 55.5, "partial"},
		{"string score", `{"match_score": "64%", "explanation": "fine"}`, 64, "fine"},
		{"missing explanation", `{"match_score": 10}`, 10, missingExplanation},
		{"out of range kept raw", `{"match_score": 140, "explanation": "x"}`, 140, "x"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Parse(tc.raw)
			require.NoError(t, err)
			assert.InDelta(t, tc.score, got.Score, 1e-9)
			assert.Equal(t, tc.explanation, got.Explanation)
		})
	}
}

func TestStructuredParserErrors(t *testing.T) {
	p := NewResponseParser(ModeStructured)

	for _, raw := range []string{
		`{"match_score": "high"`,
		`{"match_score": "high", "explanation": "x"}`,
		`{"explanation": "no score"}`,
		`no json at all`,
		``,
	} {
		_, err := p.Parse(raw)
		var perr *ResponseParseError
		require.True(t, errors.As(err, &perr), raw)
		assert.Equal(t, ModeStructured, perr.Mode)
	}
}

func TestFreeTextParser(t *testing.T) {
	p := NewResponseParser(ModeFreeText)

	cases := []struct {
		name        string
		raw         string
		score       float64
		explanation string
	}{
		{"canonical", "Score: 85%\nExplanation: Solid match.", 85, "Solid match."},
		{"lower case no percent", "score:72\nexplanation:   good fit  ", 72, "good fit"},
		{"indented with preamble", "Here you go.\n   SCORE : 40 %\n  Explanation: weak backend skills", 40, "weak backend skills"},
		{"markdown bold", "**Score:** 90%\n**Explanation:** Excellent.", 90, "Excellent."},
		{"decimal", "Score: 7.5%\nExplanation: fine", 7.5, "fine"},
		{"multi line explanation", "Score: 60%\nExplanation: first line\nsecond line", 60, "first line\nsecond line"},
		{"missing explanation", "Score: 30%", 30, missingExplanation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Parse(tc.raw)
			require.NoError(t, err)
			assert.InDelta(t, tc.score, got.Score, 1e-9)
			assert.Equal(t, tc.explanation, got.Explanation)
		})
	}
}

func TestFreeTextParserMissingScore(t *testing.T) {
	got, err := NewResponseParser(ModeFreeText).Parse("Explanation: could not decide")

	var perr *ResponseParseError
	require.True(t, errors.As(err, &perr))
	assert.Zero(t, got.Score)
	assert.Equal(t, "could not decide", got.Explanation)
}
