package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

type ScorerConfig struct {
	Mode            ResponseMode
	Scale           int
	Timeout         time.Duration
	Temperature     float32
	MaxJDChars      int
	MaxCVChars      int
	IncludeKeywords bool
}

func (c ScorerConfig) withDefaults() ScorerConfig {
	if c.Mode == "" {
		c.Mode = ModeStructured
	}
	if c.Scale != 10 {
		c.Scale = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxJDChars <= 0 {
		c.MaxJDChars = 15000
	}
	if c.MaxCVChars <= 0 {
		c.MaxCVChars = 15000
	}
	return c
}

// ScoreOutcome is a scorer verdict; Score is on the canonical 0-100 scale.
type ScoreOutcome struct {
	Score       int
	Explanation string
	Status      models.MatchStatus
}

// MatchScorer asks the model for a single score. It never returns an error:
// every failure is folded into the outcome.
type MatchScorer struct {
	provider LLMProvider
	parser   ResponseParser
	prompts  *PromptBuilder
	cfg      ScorerConfig
	log      *zap.Logger
}

func NewMatchScorer(provider LLMProvider, cfg ScorerConfig, log *zap.Logger) *MatchScorer {
	cfg = cfg.withDefaults()
	return &MatchScorer{
		provider: provider,
		parser:   NewResponseParser(cfg.Mode),
		prompts:  NewPromptBuilder(cfg.Scale),
		cfg:      cfg,
		log:      logger.OrNop(log),
	}
}

// Score runs one LLM call for the pair. Keywords must come from the full texts;
// truncation happens here, on the raw text only. The call survives cancellation
// of ctx and is bounded by the configured timeout instead.
func (s *MatchScorer) Score(ctx context.Context, jobDescription, cvText string, jdKeywords, cvKeywords []string) ScoreOutcome {
	jd := Truncate(jobDescription, s.cfg.MaxJDChars)
	cv := Truncate(cvText, s.cfg.MaxCVChars)
	if !s.cfg.IncludeKeywords {
		jdKeywords, cvKeywords = nil, nil
	}

	req := GenerationRequest{Temperature: s.cfg.Temperature}
	if s.cfg.Mode == ModeFreeText {
		req.System = s.prompts.System()
		req.Prompt = s.prompts.BuildFreeTextPrompt(jd, cv, jdKeywords, cvKeywords)
	} else {
		req.JSON = true
		req.Prompt = s.prompts.BuildStructuredPrompt(jd, cv, jdKeywords, cvKeywords)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	started := time.Now()
	raw, err := s.provider.Generate(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("request timed out after %s: %w", s.cfg.Timeout, err)
		}
		s.log.Warn("llm call failed",
			zap.String("provider", s.provider.Name()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return ScoreOutcome{
			Score:       0,
			Explanation: fmt.Sprintf("Failed to communicate with the AI service: %v", err),
			Status:      models.MatchProviderError,
		}
	}

	parsed, err := s.parser.Parse(raw)
	if err != nil {
		s.log.Warn("llm response not parseable",
			zap.String("mode", string(s.parser.Mode())),
			zap.String("raw", logger.TruncateForLog(raw, 300)),
			zap.Error(err),
		)
		return ScoreOutcome{
			Score:       0,
			Explanation: fmt.Sprintf("Could not parse the response from the AI service: %v", err),
			Status:      models.MatchParseError,
		}
	}

	s.log.Debug("llm scored document",
		zap.Float64("raw_score", parsed.Score),
		zap.Duration("elapsed", time.Since(started)),
	)

	return ScoreOutcome{
		Score:       Canonical(parsed.Score, s.cfg.Scale),
		Explanation: parsed.Explanation,
		Status:      models.MatchScored,
	}
}

// Canonical clamps a score on the given scale and maps it onto 0-100.
func Canonical(score float64, scale int) int {
	if scale <= 0 {
		scale = 100
	}
	if math.IsNaN(score) || score < 0 {
		score = 0
	}
	if score > float64(scale) {
		score = float64(scale)
	}
	return int(math.Round(score * 100 / float64(scale)))
}
