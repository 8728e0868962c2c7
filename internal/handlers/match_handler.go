package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/repositories"
	"alfredoptarigan/cv-matcher/internal/services"
)

const (
	formJobDescription = "job_description"
	formCVs            = "cvs"
)

type MatchHandler struct {
	pipeline *services.Pipeline
	jobRepo  repositories.MatchJobRepository
	worker   services.Worker
	storage  services.StorageService
	log      *zap.Logger
}

// NewMatchHandler builds the match endpoints. jobRepo and worker may be nil,
// in which case async jobs answer 503.
func NewMatchHandler(
	pipeline *services.Pipeline,
	jobRepo repositories.MatchJobRepository,
	worker services.Worker,
	storage services.StorageService,
	log *zap.Logger,
) *MatchHandler {
	return &MatchHandler{
		pipeline: pipeline,
		jobRepo:  jobRepo,
		worker:   worker,
		storage:  storage,
		log:      logger.OrNop(log),
	}
}

// HandleMatch handles POST /match and ranks the uploaded CVs synchronously.
func (h *MatchHandler) HandleMatch(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse multipart form")
	}

	files := make([]services.UploadedFile, 0, len(form.File[formCVs]))
	for _, fh := range form.File[formCVs] {
		content, err := readUpload(fh)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("failed to read %s: %v", fh.Filename, err))
		}
		files = append(files, services.UploadedFile{Filename: fh.Filename, Content: content})
	}

	resp, err := h.pipeline.Run(c.UserContext(), formValue(form, formJobDescription), files)
	if err != nil {
		return matchError(err)
	}
	return c.JSON(resp)
}

// HandleCreateJob handles POST /match/jobs. Uploads are kept on disk until
// the worker has run the job.
func (h *MatchHandler) HandleCreateJob(c *fiber.Ctx) error {
	if h.jobRepo == nil || h.worker == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "async matching requires a database")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse multipart form")
	}

	jd := formValue(form, formJobDescription)
	if strings.TrimSpace(jd) == "" {
		return fiber.NewError(fiber.StatusBadRequest, services.ErrEmptyJobDescription.Error())
	}

	var saved []models.JobFile
	for _, fh := range form.File[formCVs] {
		if strings.TrimSpace(fh.Filename) == "" {
			continue
		}
		path, err := h.storage.SaveFile(fh)
		if err != nil {
			h.discard(saved)
			return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("failed to save %s: %v", fh.Filename, err))
		}
		saved = append(saved, models.JobFile{Filename: fh.Filename, Path: path, Size: fh.Size})
	}
	if len(saved) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, services.ErrNoDocuments.Error())
	}

	job := &models.MatchJob{
		ID:             uuid.New(),
		JobDescription: jd,
		Files:          saved,
		Status:         models.JobQueued,
	}
	if err := h.jobRepo.Create(job); err != nil {
		h.discard(saved)
		return fiber.NewError(fiber.StatusInternalServerError, fmt.Sprintf("failed to create match job: %v", err))
	}

	h.worker.EnqueueJob(job.ID)
	h.log.Info("match job queued", zap.String("job_id", job.ID.String()), zap.Int("files", len(saved)))

	return c.Status(fiber.StatusAccepted).JSON(models.JobAcceptedResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	})
}

// HandleGetJob handles GET /match/jobs/:id.
func (h *MatchHandler) HandleGetJob(c *fiber.Ctx) error {
	job, err := h.findJob(c)
	if err != nil {
		return err
	}

	response := models.JobStatusResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	}
	if job.Status == models.JobCompleted {
		response.Result = &models.MatchResponse{Results: job.Results, Total: job.Total}
	}
	if job.Status == models.JobFailed && job.ErrorMessage != nil && *job.ErrorMessage != "" {
		response.ErrorMessage = job.ErrorMessage
	}

	return c.JSON(response)
}

// HandleExportJob handles GET /match/jobs/:id/export and streams the ranking as xlsx.
func (h *MatchHandler) HandleExportJob(c *fiber.Ctx) error {
	job, err := h.findJob(c)
	if err != nil {
		return err
	}
	if job.Status != models.JobCompleted {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("match job is %s", job.Status))
	}

	var buf bytes.Buffer
	if err := services.ExportResultsXLSX(&buf, job.Results); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="matches-%s.xlsx"`, job.ID))
	return c.Send(buf.Bytes())
}

func (h *MatchHandler) findJob(c *fiber.Ctx) (*models.MatchJob, error) {
	if h.jobRepo == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "async matching requires a database")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid job ID format")
	}

	job, err := h.jobRepo.FindByID(id)
	if errors.Is(err, repositories.ErrJobNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "match job not found")
	}
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return job, nil
}

func (h *MatchHandler) discard(files []models.JobFile) {
	for _, f := range files {
		if err := h.storage.DeleteFile(f.Path); err != nil {
			h.log.Warn("failed to delete upload", zap.String("path", f.Path), zap.Error(err))
		}
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// matchError maps pipeline errors onto HTTP errors.
func matchError(err error) error {
	if services.IsRequestError(err) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
