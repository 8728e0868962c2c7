package services

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// GenerationRequest is one prompt for a text model.
type GenerationRequest struct {
	System      string
	Prompt      string
	JSON        bool
	Temperature float32
	MaxTokens   int32
}

// LLMProvider sends a single prompt and returns the raw model text. Transport
// problems come back as *ProviderError.
type LLMProvider interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// RateLimitedProvider spaces calls to the wrapped provider with a token bucket.
type RateLimitedProvider struct {
	next    LLMProvider
	limiter *rate.Limiter
}

func NewRateLimitedProvider(next LLMProvider, perSecond float64, burst int) LLMProvider {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimitedProvider) Name() string { return r.next.Name() }

func (r *RateLimitedProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Provider: r.next.Name(), Err: fmt.Errorf("rate limiter: %w", err)}
	}
	return r.next.Generate(ctx, req)
}

// StaticProvider answers every prompt with the same canned result. It stands in
// for a real model when no API key is configured.
type StaticProvider struct {
	scale int
}

const staticExplanation = "This is a mock response because the API key is not configured."

func NewStaticProvider(scale int) *StaticProvider {
	if scale <= 0 {
		scale = 100
	}
	return &StaticProvider{scale: scale}
}

func (s *StaticProvider) Name() string { return "static" }

func (s *StaticProvider) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ProviderError{Provider: s.Name(), Err: err}
	}
	score := 8 * s.scale / 10
	if req.JSON || !strings.Contains(req.Prompt, "Score: [SCORE]") {
		return fmt.Sprintf(`{"match_score": %d, "explanation": %q}`, score, staticExplanation), nil
	}
	return fmt.Sprintf("Score: %d%%\nExplanation: %s", score, staticExplanation), nil
}
