package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type ResponseMode string

const (
	ModeStructured ResponseMode = "structured"
	ModeFreeText   ResponseMode = "free_text"
)

const missingExplanation = "N/A"

// ParsedScore is a model answer reduced to a raw score on the model's scale.
type ParsedScore struct {
	Score       float64
	Explanation string
}

// ResponseParser turns raw model output into a score and explanation.
type ResponseParser interface {
	Parse(raw string) (ParsedScore, error)
	Mode() ResponseMode
}

func NewResponseParser(mode ResponseMode) ResponseParser {
	if mode == ModeFreeText {
		return freeTextParser{}
	}
	return structuredParser{}
}

type structuredParser struct{}

func (structuredParser) Mode() ResponseMode { return ModeStructured }

// Parse implements ResponseParser for {"match_score", "explanation"} objects,
// tolerating code fences and chatter around the object.
func (p structuredParser) Parse(raw string) (ParsedScore, error) {
	cleaned := extractJSON(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return ParsedScore{}, &ResponseParseError{Mode: ModeStructured, Raw: raw, Err: err}
	}

	value, ok := payload["match_score"]
	if !ok {
		return ParsedScore{}, &ResponseParseError{Mode: ModeStructured, Raw: raw, Err: errors.New("match_score missing")}
	}
	score, err := coerceFloat(value)
	if err != nil {
		return ParsedScore{}, &ResponseParseError{Mode: ModeStructured, Raw: raw, Err: fmt.Errorf("match_score: %w", err)}
	}

	explanation, _ := payload["explanation"].(string)
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		explanation = missingExplanation
	}

	return ParsedScore{Score: score, Explanation: explanation}, nil
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func coerceFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return f, nil
}

var (
	scoreLine       = regexp.MustCompile(`(?im)^\s*\**\s*score\s*\**\s*:\s*\**\s*([-+]?\d+(?:\.\d+)?)\s*%?`)
	explanationLine = regexp.MustCompile(`(?ims)^\s*\**\s*explanation\s*\**\s*:\s*\**\s*(.*\S)`)
)

type freeTextParser struct{}

func (freeTextParser) Mode() ResponseMode { return ModeFreeText }

// Parse implements ResponseParser for "Score: N%" / "Explanation: ..." lines.
// A missing score line still yields score 0, but it is also returned as a
// parse error so the result reads parse_error and a model that ignored the
// format is not reported as a genuine 0% match. A missing explanation line
// falls back to a placeholder.
func (freeTextParser) Parse(raw string) (ParsedScore, error) {
	explanation := missingExplanation
	if m := explanationLine.FindStringSubmatch(raw); m != nil {
		explanation = strings.TrimSpace(m[1])
	}

	m := scoreLine.FindStringSubmatch(raw)
	if m == nil {
		return ParsedScore{Score: 0, Explanation: explanation},
			&ResponseParseError{Mode: ModeFreeText, Raw: raw, Err: errors.New("score line missing")}
	}
	score, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return ParsedScore{Explanation: explanation}, &ResponseParseError{Mode: ModeFreeText, Raw: raw, Err: err}
	}

	return ParsedScore{Score: score, Explanation: explanation}, nil
}
