package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

type LibraryHandler struct {
	library *services.Library
	log     *zap.Logger
}

func NewLibraryHandler(library *services.Library, log *zap.Logger) *LibraryHandler {
	return &LibraryHandler{library: library, log: logger.OrNop(log)}
}

// HandleUpload handles POST /cvs. Each file is reported on its own, so one
// unreadable CV does not reject the rest.
func (h *LibraryHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to parse multipart form")
	}

	var responses []models.UploadResponse
	for _, fh := range form.File[formCVs] {
		if strings.TrimSpace(fh.Filename) == "" {
			continue
		}

		content, err := readUpload(fh)
		if err != nil {
			responses = append(responses, models.UploadResponse{Filename: fh.Filename, Status: "failed", Error: err.Error()})
			continue
		}

		cv, err := h.library.Ingest(c.UserContext(), fh.Filename, content)
		if err != nil {
			h.log.Warn("cv ingest failed", zap.String("filename", fh.Filename), zap.Error(err))
			responses = append(responses, models.UploadResponse{
				ID:       services.DocumentID(content),
				Filename: fh.Filename,
				Status:   "failed",
				Error:    err.Error(),
			})
			continue
		}

		responses = append(responses, models.UploadResponse{ID: cv.ID, Filename: cv.Filename, Status: "stored"})
	}

	if len(responses) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("no files uploaded, send them as '%s'", formCVs))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"documents": responses,
	})
}

// HandleMatch handles POST /cvs/match against every stored CV.
func (h *LibraryHandler) HandleMatch(c *fiber.Ctx) error {
	var req models.LibraryMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request payload")
	}

	resp, err := h.library.Match(c.UserContext(), req.JobDescription)
	if errors.Is(err, services.ErrNoDocuments) {
		return fiber.NewError(fiber.StatusBadRequest, "the CV library is empty")
	}
	if err != nil {
		return matchError(err)
	}
	return c.JSON(resp)
}

// HandleDelete handles DELETE /cvs/:id.
func (h *LibraryHandler) HandleDelete(c *fiber.Ctx) error {
	err := h.library.Remove(c.UserContext(), c.Params("id"))
	if errors.Is(err, services.ErrTextNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "cv not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}
