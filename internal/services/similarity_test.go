package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lexiconEmbedder places tech vocabulary on +x and food vocabulary on -x.
type lexiconEmbedder struct {
	calls atomic.Int32
	err   error
}

var (
	techWords = map[string]bool{"python": true, "flask": true, "backend": true, "engineer": true, "rust": true,
		"system": true, "systems": true, "experience": true, "year": true, "years": true, "senior": true, "go": true}
	foodWords = map[string]bool{"pastry": true, "chef": true, "baking": true, "bread": true, "cake": true}
)

func (l *lexiconEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	v := []float32{0, 0.01}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ",.%")
		switch {
		case techWords[w]:
			v[0]++
		case foodWords[w]:
			v[0]--
		}
	}
	return v, nil
}

func TestCosine(t *testing.T) {
	s, err := Cosine([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = Cosine([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, s, 1e-9)

	s, err = Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s, 1e-9)

	s, err = Cosine([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = Cosine([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestSimilarityEmptyInputSkipsEmbedder(t *testing.T) {
	emb := &lexiconEmbedder{}
	gate := NewSimilarityGate(emb, DefaultSimilarityThreshold, nil)

	s, err := gate.Similarity(context.Background(), "", "python")
	require.NoError(t, err)
	assert.Zero(t, s)

	s, err = gate.Similarity(context.Background(), "python", "  ")
	require.NoError(t, err)
	assert.Zero(t, s)
	assert.Zero(t, emb.calls.Load())
}

func TestSimilarityIsSymmetric(t *testing.T) {
	gate := NewSimilarityGate(NewHashEmbedder(128), DefaultSimilarityThreshold, nil)
	pairs := [][2]string{
		{"python backend engineer", "flask python developer"},
		{"pastry chef", "rust systems"},
		{"a b c", "c b a d"},
	}
	for _, p := range pairs {
		ab, err := gate.Similarity(context.Background(), p[0], p[1])
		require.NoError(t, err)
		ba, err := gate.Similarity(context.Background(), p[1], p[0])
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-9)
		assert.GreaterOrEqual(t, ab, 0.0)
		assert.LessOrEqual(t, ab, 1.0)
	}
}

func TestGateDecision(t *testing.T) {
	gate := NewSimilarityGate(&lexiconEmbedder{}, DefaultSimilarityThreshold, nil)
	ctx := context.Background()

	related, err := gate.Similarity(ctx, "python backend engineer", "python flask experience")
	require.NoError(t, err)
	assert.True(t, gate.Passes(related))

	unrelated, err := gate.Similarity(ctx, "senior rust systems engineer", "pastry chef baking")
	require.NoError(t, err)
	assert.False(t, gate.Passes(unrelated))
}

func TestReferenceEmbedsOnce(t *testing.T) {
	emb := &lexiconEmbedder{}
	gate := NewSimilarityGate(emb, DefaultSimilarityThreshold, nil)
	ctx := context.Background()

	ref, err := gate.Reference(ctx, "python engineer")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := ref.Compare(ctx, "python")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(4), emb.calls.Load())

	empty, err := gate.Reference(ctx, "")
	require.NoError(t, err)
	s, err := empty.Compare(ctx, "python")
	require.NoError(t, err)
	assert.Zero(t, s)
}

func TestReferenceEmbedderFailure(t *testing.T) {
	gate := NewSimilarityGate(&lexiconEmbedder{err: errors.New("boom")}, 0.4, nil)
	_, err := gate.Reference(context.Background(), "python")
	assert.Error(t, err)
}

func TestGateInputFallsBackToText(t *testing.T) {
	a, b := GateInput(nil, []string{"go"}, "jd text", "cv text")
	assert.Equal(t, "jd text", a)
	assert.Equal(t, "cv text", b)

	a, b = GateInput([]string{"go", "rust"}, []string{"python"}, "jd", "cv")
	assert.Equal(t, "go rust", a)
	assert.Equal(t, "python", b)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHashEmbedder(64)
	a, err := h.Embed(context.Background(), "Go engineer")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "go ENGINEER")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = h.Embed(context.Background(), "!!!")
	assert.Error(t, err)
}

func TestHashEmbedderGateSeparatesUnrelatedText(t *testing.T) {
	gate := NewSimilarityGate(NewHashEmbedder(0), DefaultSimilarityThreshold, nil)
	ctx := context.Background()

	same, err := gate.Similarity(ctx, "python engineer", "engineer python")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-9)

	disjoint, err := gate.Similarity(ctx, "engineer rust system", "chef pastry")
	require.NoError(t, err)
	assert.Zero(t, disjoint)
	assert.False(t, gate.Passes(disjoint))

	half, err := gate.Similarity(ctx, "backend engineer python year", "experience flask python year")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, half, 1e-9)
	assert.True(t, gate.Passes(half))
}

func TestHashEmbedderVectorsAreNonNegative(t *testing.T) {
	v, err := NewHashEmbedder(32).Embed(context.Background(), "go rust python flask chef pastry baking")
	require.NoError(t, err)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, float32(0))
	}
}
