package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const DefaultSimilarityThreshold = 0.4

// Cosine returns the cosine similarity of a and b remapped from [-1,1] to [0,1].
// Orthogonal vectors land at 0.5. A zero vector yields 0.
func Cosine(a, b []float32) (float64, error) {
	cos, ok, err := cosine(a, b)
	if err != nil || !ok {
		return 0, err
	}
	return clampUnit((cos + 1) / 2), nil
}

func cosine(a, b []float32) (float64, bool, error) {
	if len(a) != len(b) {
		return 0, false, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true, nil
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// SimilarityGate decides whether a CV is close enough to a job description to
// be worth an LLM call.
type SimilarityGate struct {
	embedder    Embedder
	threshold   float64
	nonNegative bool
	log         *zap.Logger
}

// nonNegativeEmbedder marks embedders whose vectors have no negative
// components. Their cosine already lies in [0,1] with unrelated texts at 0, so
// the gate uses it as is instead of remapping.
type nonNegativeEmbedder interface {
	NonNegative() bool
}

func NewSimilarityGate(embedder Embedder, threshold float64, log *zap.Logger) *SimilarityGate {
	g := &SimilarityGate{embedder: embedder, threshold: threshold, log: logger.OrNop(log)}
	if nn, ok := embedder.(nonNegativeEmbedder); ok {
		g.nonNegative = nn.NonNegative()
	}
	return g
}

func (g *SimilarityGate) compare(a, b []float32) (float64, error) {
	if !g.nonNegative {
		return Cosine(a, b)
	}
	cos, ok, err := cosine(a, b)
	if err != nil || !ok {
		return 0, err
	}
	return clampUnit(cos), nil
}

func (g *SimilarityGate) Threshold() float64 { return g.threshold }

// Similarity embeds both texts and compares them. Empty input on either side is 0
// without calling the embedder.
func (g *SimilarityGate) Similarity(ctx context.Context, a, b string) (float64, error) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0, nil
	}
	ea, err := g.embedder.Embed(ctx, a)
	if err != nil {
		return 0, err
	}
	eb, err := g.embedder.Embed(ctx, b)
	if err != nil {
		return 0, err
	}
	return g.compare(ea, eb)
}

// Reference is a job description embedded once and compared against many CVs.
type Reference struct {
	gate   *SimilarityGate
	text   string
	vector []float32
}

// Reference embeds text for repeated comparisons. Empty text gives a reference
// that scores 0 against everything.
func (g *SimilarityGate) Reference(ctx context.Context, text string) (*Reference, error) {
	ref := &Reference{gate: g, text: text}
	if strings.TrimSpace(text) == "" {
		return ref, nil
	}
	v, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	ref.vector = v
	return ref, nil
}

// Compare returns the similarity of text to the reference.
func (r *Reference) Compare(ctx context.Context, text string) (float64, error) {
	if r.vector == nil || strings.TrimSpace(text) == "" {
		return 0, nil
	}
	v, err := r.gate.embedder.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	return r.gate.compare(r.vector, v)
}

// Passes reports whether similarity clears the configured threshold.
func (g *SimilarityGate) Passes(similarity float64) bool {
	return similarity >= g.threshold
}

// GateInput joins keywords for comparison, falling back to raw text when no
// keywords were found on either side.
func GateInput(keywords []string, cvKeywords []string, jdText, cvText string) (string, string) {
	if len(keywords) == 0 || len(cvKeywords) == 0 {
		return jdText, cvText
	}
	return strings.Join(keywords, " "), strings.Join(cvKeywords, " ")
}

// HashEmbedder is an offline embedder hashing lower-cased words into a bag of
// word counts. It needs no network and is deterministic. Texts sharing no
// words score 0 unless two of their words collide in the same bucket.
type HashEmbedder struct {
	Dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{Dims: dims}
}

// NonNegative reports that hashed counts are never negative.
func (h *HashEmbedder) NonNegative() bool { return true }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	if len(words) == 0 {
		return nil, errors.New("nothing to embed")
	}

	v := make([]float32, h.Dims)
	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		v[f.Sum64()%uint64(h.Dims)]++
	}
	return v, nil
}
