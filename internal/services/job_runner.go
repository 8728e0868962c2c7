package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
)

// JobStore is the persistence the async runner needs. The gorm match job
// repository satisfies it.
type JobStore interface {
	FindByID(id uuid.UUID) (*models.MatchJob, error)
	UpdateStatus(id uuid.UUID, status models.JobStatus) error
	UpdateResult(id uuid.UUID, resp *models.MatchResponse) error
	UpdateError(id uuid.UUID, errorMsg string) error
	FindPendingJobs(limit int) ([]models.MatchJob, error)
}

type JobRunner interface {
	RunJob(ctx context.Context, jobID uuid.UUID) error
}

type jobRunner struct {
	jobs     JobStore
	storage  StorageService
	pipeline *Pipeline
	log      *zap.Logger
}

func NewJobRunner(jobs JobStore, storage StorageService, pipeline *Pipeline, log *zap.Logger) JobRunner {
	return &jobRunner{
		jobs:     jobs,
		storage:  storage,
		pipeline: pipeline,
		log:      logger.OrNop(log),
	}
}

// RunJob matches the job's saved uploads and records the ranked results.
// Uploads are removed once the run finishes, whatever its outcome.
func (r *jobRunner) RunJob(ctx context.Context, jobID uuid.UUID) error {
	if err := r.jobs.UpdateStatus(jobID, models.JobProcessing); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	job, err := r.jobs.FindByID(jobID)
	if err != nil {
		return r.fail(jobID, fmt.Errorf("failed to load job: %w", err))
	}
	defer r.cleanup(job.Files)

	log := r.log.With(zap.String("job_id", jobID.String()))
	log.Info("running match job", zap.Int("files", len(job.Files)))

	files := make([]UploadedFile, 0, len(job.Files))
	for _, f := range job.Files {
		content, err := r.storage.ReadFile(f.Path)
		if err != nil {
			// Keep the slot so the document still shows up as an extraction failure.
			log.Warn("upload missing", zap.String("filename", f.Filename), zap.Error(err))
		}
		files = append(files, UploadedFile{Filename: f.Filename, Content: content})
	}

	resp, err := r.pipeline.Run(ctx, job.JobDescription, files)
	if err != nil {
		return r.fail(jobID, err)
	}

	if err := r.jobs.UpdateResult(jobID, resp); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	log.Info("match job completed", zap.Int("total", resp.Total))
	return nil
}

func (r *jobRunner) fail(jobID uuid.UUID, cause error) error {
	if err := r.jobs.UpdateError(jobID, cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to record job error: %w", err))
	}
	return cause
}

func (r *jobRunner) cleanup(files []models.JobFile) {
	for _, f := range files {
		if err := r.storage.DeleteFile(f.Path); err != nil {
			r.log.Warn("failed to delete upload", zap.String("path", f.Path), zap.Error(err))
		}
	}
}
