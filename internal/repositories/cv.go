package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

// CVRepository persists extracted CV text. It satisfies services.TextStore.
type CVRepository interface {
	services.TextStore
}

type cvRepository struct {
	db *gorm.DB
}

func NewCVRepository(db *gorm.DB) CVRepository {
	return &cvRepository{db: db}
}

// Put implements services.TextStore. Existing rows keep their creation time.
func (r *cvRepository) Put(ctx context.Context, cv *models.StoredCV) error {
	now := time.Now()
	if cv.CreatedAt.IsZero() {
		cv.CreatedAt = now
	}
	cv.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filename", "text", "updated_at"}),
	}).Create(cv).Error
	if err != nil {
		return fmt.Errorf("failed to store cv text: %w", err)
	}
	return nil
}

// Get implements services.TextStore.
func (r *cvRepository) Get(ctx context.Context, id string) (*models.StoredCV, error) {
	var cv models.StoredCV
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrTextNotFound
		}
		return nil, fmt.Errorf("failed to find cv: %w", err)
	}
	return &cv, nil
}

// GetAll implements services.TextStore.
func (r *cvRepository) GetAll(ctx context.Context) ([]models.StoredCV, error) {
	var cvs []models.StoredCV
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&cvs).Error; err != nil {
		return nil, fmt.Errorf("failed to list cvs: %w", err)
	}
	return cvs, nil
}

// Delete implements services.TextStore.
func (r *cvRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.StoredCV{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete cv: %w", err)
	}
	return nil
}
