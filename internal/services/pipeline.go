package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/cv-matcher/internal/cache"
	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

// UploadedFile is a raw submission from the request layer.
type UploadedFile struct {
	Filename string
	Content  []byte
}

type PipelineConfig struct {
	MaxFileSize int64
	Concurrency int
	KeywordTTL  time.Duration
}

// PipelineDeps wires the pipeline. Store, KeywordCache and Archiver are optional.
type PipelineDeps struct {
	Extractor    Extractor
	Keywords     KeywordExtractor
	Gate         *SimilarityGate
	Scorer       *MatchScorer
	Store        TextStore
	KeywordCache cache.Cache
	Archiver     Archiver
	Logger       *zap.Logger
}

// Pipeline matches a batch of CVs against one job description.
type Pipeline struct {
	deps PipelineDeps
	cfg  PipelineConfig
	log  *zap.Logger
}

func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if deps.Extractor == nil {
		deps.Extractor = NewExtractor()
	}
	return &Pipeline{deps: deps, cfg: cfg, log: logger.OrNop(deps.Logger)}
}

// DocumentID returns the content hash used as a document's identifier.
func DocumentID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Run matches uploaded files. Files with an empty name are dropped before
// matching. Only an empty job description or an empty batch are errors; every
// other failure is reported in the affected document's result.
func (p *Pipeline) Run(ctx context.Context, jobDescription string, files []UploadedFile) (*models.MatchResponse, error) {
	docs := make([]models.Document, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.Filename) == "" {
			continue
		}
		docs = append(docs, models.Document{
			ID:               DocumentID(f.Content),
			Filename:         f.Filename,
			Content:          f.Content,
			ExtractionStatus: models.ExtractionPending,
		})
	}
	return p.RunDocuments(ctx, jobDescription, docs)
}

// RunDocuments matches documents that may already carry extracted text
// (ExtractionStatus ok), as the CV library does.
func (p *Pipeline) RunDocuments(ctx context.Context, jobDescription string, docs []models.Document) (*models.MatchResponse, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return nil, ErrEmptyJobDescription
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	started := time.Now()
	req := p.newRequest(jobDescription)

	outcomes := make([]Outcome, len(docs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for i := range docs {
		i, doc := i, docs[i]
		base := Outcome{Index: i, DocumentID: doc.ID, Filename: doc.Filename}

		if ctx.Err() != nil {
			outcomes[i] = cancelled(base)
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = cancelled(base)
				return nil
			}
			outcomes[i] = p.process(ctx, req, base, doc)
			return nil
		})
	}
	_ = g.Wait()

	results := Aggregate(outcomes)
	p.log.Info("match request finished",
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(started)),
	)

	return &models.MatchResponse{Results: results, Total: len(results)}, nil
}

func cancelled(base Outcome) Outcome {
	base.Kind = OutcomeFailed
	base.Failure = FailureCancelled
	return base
}

// matchRequest holds per-request state shared read-only by document workers.
type matchRequest struct {
	jd         string
	jdKeywords []string

	kwRefOnce   sync.Once
	kwRef       *Reference
	kwRefErr    error
	textRefOnce sync.Once
	textRef     *Reference
	textRefErr  error

	texts sync.Map // document ID -> *textOnce
}

type textOnce struct {
	once    sync.Once
	text    string
	outcome *Outcome
}

func (p *Pipeline) newRequest(jd string) *matchRequest {
	return &matchRequest{jd: jd, jdKeywords: p.deps.Keywords.Extract(jd)}
}

func (p *Pipeline) reference(ctx context.Context, req *matchRequest, useKeywords bool) (*Reference, error) {
	if useKeywords {
		req.kwRefOnce.Do(func() {
			req.kwRef, req.kwRefErr = p.deps.Gate.Reference(ctx, strings.Join(req.jdKeywords, " "))
		})
		return req.kwRef, req.kwRefErr
	}
	req.textRefOnce.Do(func() {
		req.textRef, req.textRefErr = p.deps.Gate.Reference(ctx, req.jd)
	})
	return req.textRef, req.textRefErr
}

func (p *Pipeline) process(ctx context.Context, req *matchRequest, base Outcome, doc models.Document) Outcome {
	log := p.log.With(logger.Document(doc.ID, doc.Filename))

	if doc.ExtractionStatus != models.ExtractionOK && p.cfg.MaxFileSize > 0 && int64(len(doc.Content)) > p.cfg.MaxFileSize {
		log.Info("document rejected by size", zap.Int("bytes", len(doc.Content)))
		base.Kind, base.Failure = OutcomeFailed, FailureSize
		base.Reason = fmt.Sprintf("%v: file is %d bytes, the limit is %d bytes.", ErrSizeExceeded, len(doc.Content), p.cfg.MaxFileSize)
		return base
	}

	text, failed := p.documentText(ctx, req, base, doc, log)
	if failed != nil {
		return *failed
	}

	cvKeywords := p.cvKeywords(ctx, doc.ID, text, log)

	useKeywords := len(req.jdKeywords) > 0 && len(cvKeywords) > 0
	_, cvGateText := GateInput(req.jdKeywords, cvKeywords, req.jd, text)

	ref, err := p.reference(ctx, req, useKeywords)
	if err == nil {
		var sim float64
		sim, err = ref.Compare(ctx, cvGateText)
		if err == nil {
			base.Similarity = &sim
			base.Threshold = p.deps.Gate.Threshold()
			if !p.deps.Gate.Passes(sim) {
				log.Info("document below similarity threshold", zap.Float64("similarity", sim))
				base.Kind = OutcomeSkipped
				return base
			}
		}
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		log.Info("request cancelled before scoring")
		return cancelled(base)
	}
	if err != nil {
		log.Warn("similarity check failed, scoring anyway", zap.Error(err))
	}

	outcome := outcomeFromScore(base, p.deps.Scorer.Score(ctx, req.jd, text, req.jdKeywords, cvKeywords))
	if outcome.Kind == OutcomeScored && p.deps.Archiver != nil && len(doc.Content) > 0 {
		url, err := p.deps.Archiver.Archive(ctx, doc.ID, doc.Filename, doc.Content)
		if err != nil {
			log.Warn("failed to archive matched document", zap.Error(err))
		} else {
			outcome.MatchedURL = url
		}
	}
	return outcome
}

// documentText resolves text once per document ID within a request: already
// extracted, from the store, or by extraction.
func (p *Pipeline) documentText(ctx context.Context, req *matchRequest, base Outcome, doc models.Document, log *zap.Logger) (string, *Outcome) {
	if doc.ExtractionStatus == models.ExtractionOK {
		if strings.TrimSpace(doc.Text) == "" {
			return "", extractionFailed(base, "No extractable text found in document.")
		}
		return doc.Text, nil
	}

	v, _ := req.texts.LoadOrStore(doc.ID, &textOnce{})
	entry := v.(*textOnce)
	entry.once.Do(func() {
		entry.text, entry.outcome = p.loadText(ctx, base, doc, log)
	})
	if entry.outcome != nil {
		failed := *entry.outcome
		failed.Index, failed.Filename = base.Index, base.Filename
		return "", &failed
	}
	return entry.text, nil
}

func (p *Pipeline) loadText(ctx context.Context, base Outcome, doc models.Document, log *zap.Logger) (string, *Outcome) {
	if p.deps.Store != nil {
		stored, err := p.deps.Store.Get(ctx, doc.ID)
		switch {
		case err == nil && strings.TrimSpace(stored.Text) != "":
			log.Debug("using stored text")
			return stored.Text, nil
		case err != nil && !errors.Is(err, ErrTextNotFound):
			log.Warn("failed to read stored text", zap.Error(err))
		}
	}

	text, err := p.deps.Extractor.Extract(doc.Content, doc.Filename)
	if err != nil {
		log.Warn("text extraction failed", zap.Error(err))
		if errors.Is(err, ErrUnsupportedFormat) {
			return "", extractionFailed(base, fmt.Sprintf("Unsupported file format %q; only PDF and DOCX are accepted.", NormalizeExt(doc.Filename)))
		}
		return "", extractionFailed(base, fmt.Sprintf("Failed to extract text: %v", err))
	}
	if strings.TrimSpace(text) == "" {
		return "", extractionFailed(base, "No extractable text found in document.")
	}

	if p.deps.Store != nil {
		if err := p.deps.Store.Put(ctx, &models.StoredCV{ID: doc.ID, Filename: doc.Filename, Text: text}); err != nil {
			log.Warn("failed to persist extracted text", zap.Error(err))
		}
	}
	return text, nil
}

func extractionFailed(base Outcome, reason string) *Outcome {
	base.Kind, base.Failure, base.Reason = OutcomeFailed, FailureExtraction, reason
	return &base
}

func (p *Pipeline) cvKeywords(ctx context.Context, id, text string, log *zap.Logger) []string {
	if p.deps.KeywordCache == nil {
		return p.deps.Keywords.Extract(text)
	}

	key := "cvkw:" + id
	if raw, err := p.deps.KeywordCache.Get(ctx, key); err == nil {
		var kw []string
		if json.Unmarshal([]byte(raw), &kw) == nil {
			return kw
		}
	}

	kw := p.deps.Keywords.Extract(text)
	if raw, err := json.Marshal(kw); err == nil {
		if err := p.deps.KeywordCache.Set(ctx, key, string(raw), p.cfg.KeywordTTL); err != nil {
			log.Debug("failed to cache keywords", zap.Error(err))
		}
	}
	return kw
}
