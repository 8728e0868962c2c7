package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

type Routes struct {
	Match   *MatchHandler
	Library *LibraryHandler
	// MatchedDir is served under /matched when archives are kept on local disk.
	MatchedDir string
	Version    string
	// BaseContext becomes every request's user context. fiber does not cancel
	// a request's context when the client goes away, so cancelling this one on
	// shutdown is what stops in-flight matches.
	BaseContext context.Context
}

func Register(app *fiber.App, r Routes) {
	if r.BaseContext != nil {
		app.Use(func(c *fiber.Ctx) error {
			c.SetUserContext(r.BaseContext)
			return c.Next()
		})
	}

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	endpoints := []string{"GET /api/v1/health"}
	if r.Match != nil {
		api.Post("/match", r.Match.HandleMatch)
		api.Post("/match/jobs", r.Match.HandleCreateJob)
		api.Get("/match/jobs/:id", r.Match.HandleGetJob)
		api.Get("/match/jobs/:id/export", r.Match.HandleExportJob)
		endpoints = append(endpoints,
			"POST /api/v1/match",
			"POST /api/v1/match/jobs",
			"GET /api/v1/match/jobs/:id",
			"GET /api/v1/match/jobs/:id/export",
		)
	}
	if r.Library != nil {
		api.Post("/cvs", r.Library.HandleUpload)
		api.Post("/cvs/match", r.Library.HandleMatch)
		api.Delete("/cvs/:id", r.Library.HandleDelete)
		endpoints = append(endpoints, "POST /api/v1/cvs", "POST /api/v1/cvs/match", "DELETE /api/v1/cvs/:id")
	}
	if r.MatchedDir != "" {
		app.Static("/matched", r.MatchedDir, fiber.Static{Download: true})
		endpoints = append(endpoints, "GET /matched/:filename")
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":   "CV Matcher API",
			"version":   r.Version,
			"endpoints": endpoints,
		})
	})
}

// ErrorHandler renders every error as {"error", "code"}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
