package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alfredoptarigan/cv-matcher/internal/cache"
	"alfredoptarigan/cv-matcher/internal/models"
)

var ErrTextNotFound = errors.New("stored text not found")

// TextStore persists extracted CV text keyed by document ID.
type TextStore interface {
	Put(ctx context.Context, cv *models.StoredCV) error
	Get(ctx context.Context, id string) (*models.StoredCV, error)
	GetAll(ctx context.Context) ([]models.StoredCV, error)
	Delete(ctx context.Context, id string) error
}

const textKeyPrefix = "cvtext:"

type cacheTextStore struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewCacheTextStore keeps texts in a cache. A ttl of zero keeps them indefinitely.
func NewCacheTextStore(c cache.Cache, ttl time.Duration) TextStore {
	return &cacheTextStore{cache: c, ttl: ttl}
}

func (s *cacheTextStore) Put(ctx context.Context, cv *models.StoredCV) error {
	if cv.CreatedAt.IsZero() {
		cv.CreatedAt = time.Now()
	}
	cv.UpdatedAt = time.Now()

	raw, err := json.Marshal(storedText{ID: cv.ID, Filename: cv.Filename, Text: cv.Text, CreatedAt: cv.CreatedAt, UpdatedAt: cv.UpdatedAt})
	if err != nil {
		return fmt.Errorf("failed to encode stored text: %w", err)
	}
	if err := s.cache.Set(ctx, textKeyPrefix+cv.ID, string(raw), s.ttl); err != nil {
		return fmt.Errorf("failed to store text: %w", err)
	}
	return nil
}

func (s *cacheTextStore) Get(ctx context.Context, id string) (*models.StoredCV, error) {
	raw, err := s.cache.Get(ctx, textKeyPrefix+id)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrTextNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stored text: %w", err)
	}
	return decodeStoredText(raw)
}

func (s *cacheTextStore) GetAll(ctx context.Context) ([]models.StoredCV, error) {
	keys, err := s.cache.Keys(ctx, textKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored texts: %w", err)
	}

	out := make([]models.StoredCV, 0, len(keys))
	for _, key := range keys {
		cv, err := s.Get(ctx, strings.TrimPrefix(key, textKeyPrefix))
		if errors.Is(err, ErrTextNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *cv)
	}
	return out, nil
}

func (s *cacheTextStore) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, textKeyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete stored text: %w", err)
	}
	return nil
}

// storedText carries the text field that models.StoredCV hides from JSON.
type storedText struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func decodeStoredText(raw string) (*models.StoredCV, error) {
	var st storedText
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("failed to decode stored text: %w", err)
	}
	return &models.StoredCV{ID: st.ID, Filename: st.Filename, Text: st.Text, CreatedAt: st.CreatedAt, UpdatedAt: st.UpdatedAt}, nil
}
