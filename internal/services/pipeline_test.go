package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-matcher/internal/cache"
	"alfredoptarigan/cv-matcher/internal/models"
)

type countingExtractor struct {
	next  Extractor
	calls atomic.Int32
}

func (c *countingExtractor) Extract(content []byte, ext string) (string, error) {
	c.calls.Add(1)
	return c.next.Extract(content, ext)
}

type memoryArchiver struct {
	mu    sync.Mutex
	names []string
}

func (m *memoryArchiver) Archive(_ context.Context, docID, filename string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, filename)
	return "/matched/" + ArchiveName(docID, filename), nil
}

type pipelineFixture struct {
	provider  *mockProvider
	embedder  *lexiconEmbedder
	extractor *countingExtractor
	store     TextStore
	cache     cache.Cache
	archiver  *memoryArchiver
	pipeline  *Pipeline
}

func newPipelineFixture(t *testing.T, cfg PipelineConfig) *pipelineFixture {
	t.Helper()

	mc := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = mc.Close() })

	f := &pipelineFixture{
		provider:  &mockProvider{},
		embedder:  &lexiconEmbedder{},
		extractor: &countingExtractor{next: NewExtractor()},
		store:     NewCacheTextStore(mc, 0),
		cache:     mc,
		archiver:  &memoryArchiver{},
	}
	f.pipeline = f.build(stubModel(), f.embedder, cfg)
	return f
}

// build wires a pipeline over the fixture's provider, store and archiver.
func (f *pipelineFixture) build(model *NLPModel, embedder Embedder, cfg PipelineConfig) *Pipeline {
	return NewPipeline(PipelineDeps{
		Extractor:    f.extractor,
		Keywords:     NewKeywordExtractor(model, false, nil),
		Gate:         NewSimilarityGate(embedder, DefaultSimilarityThreshold, nil),
		Scorer:       NewMatchScorer(f.provider, ScorerConfig{IncludeKeywords: true}, nil),
		Store:        f.store,
		KeywordCache: f.cache,
		Archiver:     f.archiver,
	}, cfg)
}

// cancellingEmbedder cancels the request while the gate is embedding.
type cancellingEmbedder struct {
	cancel context.CancelFunc
}

func (c *cancellingEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestPipelineRelevantCVIsScored(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(`{"match_score": 75, "explanation": "Python and Flask experience."}`, nil).Once()

	resp, err := f.pipeline.Run(context.Background(), "Python backend engineer, 3 years", []UploadedFile{
		{Filename: "jane.docx", Content: buildDOCX(t, "Python, Flask, 4 years experience")},
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)

	r := resp.Results[0]
	assert.Equal(t, models.MatchScored, r.Status)
	assert.Equal(t, 75, r.Score)
	require.NotNil(t, r.Similarity)
	assert.GreaterOrEqual(t, *r.Similarity, DefaultSimilarityThreshold)
	assert.NotEmpty(t, r.MatchedURL)
	assert.Equal(t, []string{"jane.docx"}, f.archiver.names)
	f.provider.AssertExpectations(t)
}

func TestPipelineUnrelatedCVIsSkipped(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})

	resp, err := f.pipeline.Run(context.Background(), "senior Rust systems engineer", []UploadedFile{
		{Filename: "chef.docx", Content: buildDOCX(t, "pastry chef, baking")},
	})
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Equal(t, models.MatchSkippedLowSimilarity, r.Status)
	assert.Zero(t, r.Score)
	assert.Contains(t, r.Explanation, "threshold")
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	assert.Empty(t, f.archiver.names)
}

func TestPipelineDefaultModelsSkipUnrelatedCV(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	p := f.build(NewNLPModel(), NewHashEmbedder(0), PipelineConfig{})

	resp, err := p.Run(context.Background(), "senior Rust systems engineer", []UploadedFile{
		{Filename: "chef.docx", Content: buildDOCX(t, "pastry chef, baking")},
	})
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Equal(t, models.MatchSkippedLowSimilarity, r.Status)
	require.NotNil(t, r.Similarity)
	assert.Less(t, *r.Similarity, DefaultSimilarityThreshold)
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestPipelineDefaultModelsScoreRelevantCV(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(`{"match_score": 70, "explanation": "Python and Flask."}`, nil).Once()
	p := f.build(NewNLPModel(), NewHashEmbedder(0), PipelineConfig{})

	resp, err := p.Run(context.Background(), "Python backend engineer, 3 years", []UploadedFile{
		{Filename: "jane.docx", Content: buildDOCX(t, "Python, Flask, 4 years experience")},
	})
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Equal(t, models.MatchScored, r.Status)
	require.NotNil(t, r.Similarity)
	assert.GreaterOrEqual(t, *r.Similarity, DefaultSimilarityThreshold)
	f.provider.AssertExpectations(t)
}

func TestPipelineMalformedModelOutput(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.provider.On("Generate", mock.Anything, mock.Anything).Return(`{"match_score": "high"`, nil)

	resp, err := f.pipeline.Run(context.Background(), "Python backend engineer", []UploadedFile{
		{Filename: "cv.docx", Content: buildDOCX(t, "Python engineer")},
	})
	require.NoError(t, err)

	r := resp.Results[0]
	assert.Zero(t, r.Score)
	assert.Equal(t, models.MatchParseError, r.Status)
	assert.NotEmpty(t, r.Explanation)
}

func TestPipelineRequestValidation(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx := context.Background()

	resp, err := f.pipeline.Run(ctx, "Python engineer", nil)
	assert.ErrorIs(t, err, ErrNoDocuments)
	assert.Nil(t, resp)

	_, err = f.pipeline.Run(ctx, "Python engineer", []UploadedFile{{Filename: "  ", Content: []byte("x")}})
	assert.ErrorIs(t, err, ErrNoDocuments)

	_, err = f.pipeline.Run(ctx, "   ", []UploadedFile{{Filename: "a.pdf", Content: []byte("x")}})
	assert.ErrorIs(t, err, ErrEmptyJobDescription)
	assert.True(t, IsRequestError(err))
}

func TestPipelineCorruptPDFAlongsideValidCV(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(`{"match_score": 60, "explanation": "Reasonable."}`, nil).Once()

	resp, err := f.pipeline.Run(context.Background(), "Python backend engineer", []UploadedFile{
		{Filename: "broken.pdf", Content: corruptPDF},
		{Filename: "good.pdf", Content: buildPDF(t, "Python backend engineer", "5 years")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 2, resp.Total)

	assert.Equal(t, "good.pdf", resp.Results[0].Filename)
	assert.Equal(t, models.MatchScored, resp.Results[0].Status)

	assert.Equal(t, "broken.pdf", resp.Results[1].Filename)
	assert.Equal(t, models.MatchExtractionFailed, resp.Results[1].Status)
	assert.Zero(t, resp.Results[1].Score)
	assert.NotEmpty(t, resp.Results[1].Explanation)
}

func TestPipelineEveryDocumentGetsOneResult(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{MaxFileSize: 2048, Concurrency: 2})
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(`{"match_score": 40, "explanation": "ok"}`, nil)

	big := make([]byte, 4096)
	files := []UploadedFile{
		{Filename: "a.docx", Content: buildDOCX(t, "Python engineer")},
		{Filename: "notes.txt", Content: []byte("python")},
		{Filename: "huge.pdf", Content: big},
		{Filename: "empty.docx", Content: buildDOCX(t)},
		{Filename: "", Content: []byte("dropped")},
		{Filename: "chef.docx", Content: buildDOCX(t, "pastry chef")},
	}

	resp, err := f.pipeline.Run(context.Background(), "Python engineer", files)
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Total)

	status := map[string]models.MatchStatus{}
	for _, r := range resp.Results {
		status[r.Filename] = r.Status
		assert.NotEmpty(t, r.Explanation)
		if r.Status == models.MatchSizeRejected {
			assert.Contains(t, r.Explanation, ErrSizeExceeded.Error())
			assert.Contains(t, r.Explanation, "4096 bytes")
		}
	}
	assert.Equal(t, map[string]models.MatchStatus{
		"a.docx":     models.MatchScored,
		"notes.txt":  models.MatchExtractionFailed,
		"huge.pdf":   models.MatchSizeRejected,
		"empty.docx": models.MatchExtractionFailed,
		"chef.docx":  models.MatchSkippedLowSimilarity,
	}, status)
}

func TestPipelineDoesNotReExtractIdenticalContent(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(`{"match_score": 55, "explanation": "ok"}`, nil)

	content := buildDOCX(t, "Python engineer")
	files := []UploadedFile{{Filename: "one.docx", Content: content}, {Filename: "two.docx", Content: content}}

	resp, err := f.pipeline.Run(context.Background(), "Python engineer", files)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, resp.Results[0].DocumentID, resp.Results[1].DocumentID)
	assert.Equal(t, "one.docx", resp.Results[0].Filename, "ties keep submission order")
	assert.Equal(t, int32(1), f.extractor.calls.Load())

	_, err = f.pipeline.Run(context.Background(), "Python engineer", files[:1])
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.extractor.calls.Load(), "second request reads the store")

	stored, err := f.store.Get(context.Background(), DocumentID(content))
	require.NoError(t, err)
	assert.Equal(t, "Python engineer", stored.Text)
}

func TestPipelineEmbeddingFailureStillScores(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.embedder.err = errors.New("embedding quota exceeded")
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(`{"match_score": 30, "explanation": "weak"}`, nil).Once()

	resp, err := f.pipeline.Run(context.Background(), "Python engineer", []UploadedFile{
		{Filename: "cv.docx", Content: buildDOCX(t, "pastry chef")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchScored, resp.Results[0].Status)
	assert.Nil(t, resp.Results[0].Similarity)
}

func TestPipelineProviderFailure(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return("", &ProviderError{Provider: "mock", Err: errors.New("connection refused")})

	resp, err := f.pipeline.Run(context.Background(), "Python engineer", []UploadedFile{
		{Filename: "cv.docx", Content: buildDOCX(t, "Python engineer")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchProviderError, resp.Results[0].Status)
	assert.Zero(t, resp.Results[0].Score)
	assert.Contains(t, resp.Results[0].Explanation, "connection refused")
}

func TestPipelineCancelledRequest(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := f.pipeline.Run(ctx, "Python engineer", []UploadedFile{
		{Filename: "a.docx", Content: buildDOCX(t, "Python")},
		{Filename: "b.docx", Content: buildDOCX(t, "Go")},
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Total)
	for _, r := range resp.Results {
		assert.Equal(t, models.MatchCancelled, r.Status)
	}
	assert.Zero(t, f.extractor.calls.Load())
}

func TestPipelineCancelledDuringSimilarityCheck(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := f.build(stubModel(), &cancellingEmbedder{cancel: cancel}, PipelineConfig{})

	resp, err := p.Run(ctx, "Python engineer", []UploadedFile{
		{Filename: "a.docx", Content: buildDOCX(t, "Python engineer")},
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, models.MatchCancelled, resp.Results[0].Status)
	assert.Nil(t, resp.Results[0].Similarity)
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	assert.Empty(t, f.archiver.names)
}

func TestPipelineRunDocumentsUsesGivenText(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{})
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(`{"match_score": 90, "explanation": "great"}`, nil)

	resp, err := f.pipeline.RunDocuments(context.Background(), "Python engineer", []models.Document{
		{ID: "abc", Filename: "stored.pdf", Text: "Python engineer", ExtractionStatus: models.ExtractionOK},
	})
	require.NoError(t, err)
	assert.Equal(t, 90, resp.Results[0].Score)
	assert.Empty(t, resp.Results[0].MatchedURL)
	assert.Zero(t, f.extractor.calls.Load())
}
