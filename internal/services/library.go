package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

// Library is the persisted CV collection that can be matched without re-uploading.
type Library struct {
	extractor Extractor
	store     TextStore
	embedder  Embedder
	index     CVIndex
	pipeline  *Pipeline
	shortlist int
	maxSize   int64
	log       *zap.Logger
}

type LibraryDeps struct {
	Extractor Extractor
	Store     TextStore
	Embedder  Embedder
	Index     CVIndex
	Pipeline  *Pipeline
	Shortlist int
	MaxSize   int64
	Logger    *zap.Logger
}

func NewLibrary(deps LibraryDeps) *Library {
	if deps.Extractor == nil {
		deps.Extractor = NewExtractor()
	}
	if deps.Shortlist <= 0 {
		deps.Shortlist = 20
	}
	return &Library{
		extractor: deps.Extractor,
		store:     deps.Store,
		embedder:  deps.Embedder,
		index:     deps.Index,
		pipeline:  deps.Pipeline,
		shortlist: deps.Shortlist,
		maxSize:   deps.MaxSize,
		log:       logger.OrNop(deps.Logger),
	}
}

// Ingest extracts and stores a CV, and indexes it when a vector index is configured.
// Indexing failures are logged; the CV stays matchable through a full scan.
func (l *Library) Ingest(ctx context.Context, filename string, content []byte) (*models.StoredCV, error) {
	if l.maxSize > 0 && int64(len(content)) > l.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSizeExceeded, len(content))
	}

	id := DocumentID(content)
	if existing, err := l.store.Get(ctx, id); err == nil {
		l.log.Debug("cv already in library", logger.Document(id, filename))
		return existing, nil
	}

	text, err := l.extractor.Extract(content, filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ExtractionError{Format: strings.TrimPrefix(NormalizeExt(filename), "."), Err: errors.New("no text content found")}
	}

	cv := &models.StoredCV{ID: id, Filename: filename, Text: text}
	if err := l.store.Put(ctx, cv); err != nil {
		return nil, fmt.Errorf("failed to store cv: %w", err)
	}

	if l.index != nil && l.embedder != nil {
		if vec, err := l.embedder.Embed(ctx, text); err != nil {
			l.log.Warn("failed to embed cv for index", logger.Document(id, filename), zap.Error(err))
		} else if err := l.index.Upsert(ctx, id, filename, vec); err != nil {
			l.log.Warn("failed to index cv", logger.Document(id, filename), zap.Error(err))
		}
	}

	l.log.Info("cv ingested", logger.Document(id, filename), zap.Int("chars", len(text)))
	return cv, nil
}

// Remove drops a CV from the library and the vector index.
func (l *Library) Remove(ctx context.Context, id string) error {
	if _, err := l.store.Get(ctx, id); err != nil {
		return err
	}
	if err := l.store.Delete(ctx, id); err != nil {
		return err
	}
	if l.index != nil {
		if err := l.index.Delete(ctx, id); err != nil {
			l.log.Warn("failed to remove cv from index", zap.String("id", id), zap.Error(err))
		}
	}
	l.log.Info("cv removed", zap.String("id", id))
	return nil
}

// Match ranks library CVs against a job description.
func (l *Library) Match(ctx context.Context, jobDescription string) (*models.MatchResponse, error) {
	if strings.TrimSpace(jobDescription) == "" {
		return nil, ErrEmptyJobDescription
	}

	cvs, err := l.candidates(ctx, jobDescription)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(cvs))
	for _, cv := range cvs {
		docs = append(docs, models.Document{
			ID:               cv.ID,
			Filename:         cv.Filename,
			Text:             cv.Text,
			ExtractionStatus: models.ExtractionOK,
		})
	}
	return l.pipeline.RunDocuments(ctx, jobDescription, docs)
}

func (l *Library) candidates(ctx context.Context, jobDescription string) ([]models.StoredCV, error) {
	if l.index != nil && l.embedder != nil {
		cvs, err := l.shortlisted(ctx, jobDescription)
		if err == nil && len(cvs) > 0 {
			return cvs, nil
		}
		if err != nil {
			l.log.Warn("shortlist failed, scanning whole library", zap.Error(err))
		}
	}

	cvs, err := l.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load library: %w", err)
	}
	return cvs, nil
}

func (l *Library) shortlisted(ctx context.Context, jobDescription string) ([]models.StoredCV, error) {
	vec, err := l.embedder.Embed(ctx, jobDescription)
	if err != nil {
		return nil, err
	}
	hits, err := l.index.Search(ctx, vec, l.shortlist)
	if err != nil {
		return nil, err
	}

	cvs := make([]models.StoredCV, 0, len(hits))
	for _, hit := range hits {
		cv, err := l.store.Get(ctx, hit.DocumentID)
		if errors.Is(err, ErrTextNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cvs = append(cvs, *cv)
	}
	return cvs, nil
}
