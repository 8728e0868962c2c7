package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-matcher/internal/models"
)

var ErrJobNotFound = errors.New("match job not found")

type MatchJobRepository interface {
	Create(job *models.MatchJob) error
	FindByID(id uuid.UUID) (*models.MatchJob, error)
	UpdateStatus(id uuid.UUID, status models.JobStatus) error
	UpdateResult(id uuid.UUID, resp *models.MatchResponse) error
	UpdateError(id uuid.UUID, errorMsg string) error
	FindPendingJobs(limit int) ([]models.MatchJob, error)
}

type matchJobRepository struct {
	db *gorm.DB
}

func NewMatchJobRepository(db *gorm.DB) MatchJobRepository {
	return &matchJobRepository{db: db}
}

func (r *matchJobRepository) Create(job *models.MatchJob) error {
	if err := r.db.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create match job: %w", err)
	}
	return nil
}

func (r *matchJobRepository) FindByID(id uuid.UUID) (*models.MatchJob, error) {
	var job models.MatchJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find match job: %w", err)
	}
	return &job, nil
}

func (r *matchJobRepository) UpdateStatus(id uuid.UUID, status models.JobStatus) error {
	return r.update(id, map[string]interface{}{
		"status": status,
	})
}

// UpdateResult stores the ranked results and marks the job completed.
func (r *matchJobRepository) UpdateResult(id uuid.UUID, resp *models.MatchResponse) error {
	result := r.db.Model(&models.MatchJob{}).
		Where("id = ?", id).
		Select("results", "total", "status", "updated_at").
		Updates(&models.MatchJob{
			Results:   resp.Results,
			Total:     resp.Total,
			Status:    models.JobCompleted,
			UpdatedAt: time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update result: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *matchJobRepository) UpdateError(id uuid.UUID, errorMsg string) error {
	return r.update(id, map[string]interface{}{
		"status":        models.JobFailed,
		"error_message": errorMsg,
	})
}

func (r *matchJobRepository) FindPendingJobs(limit int) ([]models.MatchJob, error) {
	var jobs []models.MatchJob
	err := r.db.
		Where("status = ?", models.JobQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return jobs, nil
}

func (r *matchJobRepository) update(id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := r.db.Model(&models.MatchJob{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update match job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}
