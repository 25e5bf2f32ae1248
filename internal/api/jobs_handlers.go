package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dailytrack/dailytrack/internal/classify"
	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/model"
)

func (a *API) handleListJobs(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	jobs, err := a.storage.ListJobs(c.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list jobs")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch jobs"})
	}
	return c.JSON(jobs)
}

type jobRequest struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	Company      string `json:"company"`
	Location     string `json:"location"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	PostedDate   string `json:"postedDate"`
	AnalyzedDate string `json:"analyzedDate"`
}

func (a *API) handleCreateJob(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	var req jobRequest
	if err := c.BodyParser(&req); err != nil || req.URL == "" || req.Title == "" || req.Company == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid job data"})
	}

	job, err := a.storage.CreateJob(c.Context(), model.InsertJob{
		UserID:       userID,
		URL:          req.URL,
		Title:        req.Title,
		Company:      req.Company,
		Location:     req.Location,
		Type:         req.Type,
		Description:  req.Description,
		PostedDate:   req.PostedDate,
		AnalyzedDate: req.AnalyzedDate,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to create job")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create job"})
	}

	a.broadcaster.Broadcast("job:created", job)
	return c.JSON(job)
}

// handleAnalyzeJob runs the URL classification pipeline: validate,
// reject duplicates against the user's saved jobs, extract company and
// title, then persist and broadcast the new record.
func (a *API) handleAnalyzeJob(c *fiber.Ctx) error {
	userID, err := a.requireUser(c)
	if err != nil {
		return err
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	jobs, err := a.storage.ListJobs(c.Context(), userID)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list jobs for duplicate check")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to analyze job"})
	}
	existing := make([]string, 0, len(jobs))
	for _, j := range jobs {
		existing = append(existing, j.URL)
	}

	result, err := classify.Analyze(req.URL, existing)
	switch {
	case errors.Is(err, classify.ErrInvalidURL):
		a.metrics.ClassifyRequestsTotal.WithLabelValues("invalid_url").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Please enter a valid job posting URL",
		})
	case errors.Is(err, classify.ErrDuplicateURL):
		// Already tracked is a notice, not a failure.
		a.metrics.ClassifyRequestsTotal.WithLabelValues("duplicate").Inc()
		return c.JSON(fiber.Map{
			"already_analyzed": true,
			"message":          "This job has already been analyzed",
		})
	case errors.Is(err, classify.ErrUnknownCompany):
		a.metrics.ClassifyRequestsTotal.WithLabelValues("unknown_company").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Could not identify the company from this URL",
		})
	case err != nil:
		a.metrics.ClassifyRequestsTotal.WithLabelValues("error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to analyze job"})
	}
	a.metrics.ClassifyRequestsTotal.WithLabelValues("success").Inc()

	job, err := a.storage.CreateJob(c.Context(), model.InsertJob{
		UserID:       userID,
		URL:          strings.TrimSpace(req.URL),
		Title:        result.Title,
		Company:      result.Company,
		AnalyzedDate: nowFunc().Format("2006-01-02"),
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to persist analyzed job")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to analyze job"})
	}

	a.broadcaster.Broadcast("job:created", job)
	return c.JSON(job)
}

func (a *API) handleUpdateJob(c *fiber.Ctx) error {
	if _, err := a.requireUser(c); err != nil {
		return err
	}

	var patch model.JobPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to update job"})
	}

	job, err := a.storage.UpdateJob(c.Context(), c.Params("id"), patch)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
		}
		a.logger.Error().Err(err).Msg("Failed to update job")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to update job"})
	}

	a.broadcaster.Broadcast("job:updated", job)
	return c.JSON(job)
}

func (a *API) handleDeleteJob(c *fiber.Ctx) error {
	if _, err := a.requireUser(c); err != nil {
		return err
	}

	id := c.Params("id")
	deleted, err := a.storage.DeleteJob(c.Context(), id)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to delete job")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete job"})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
	}

	a.broadcaster.Broadcast("job:deleted", fiber.Map{"id": id})
	return c.SendStatus(fiber.StatusNoContent)
}
