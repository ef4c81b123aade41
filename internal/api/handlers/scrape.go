package handlers

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/pipeline"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
)

// ScrapeService defines the operations behind the scrape endpoints
type ScrapeService interface {
	Trigger(ctx context.Context, req pipeline.TriggerRequest) (*pipeline.TriggerResult, error)
	Job(ctx context.Context, id uuid.UUID) (*pipeline.JobView, error)
	Sources(ctx context.Context) ([]pipeline.SourceView, error)
}

// ScrapeHandler handles scrape API requests
type ScrapeHandler struct {
	service  ScrapeService
	validate *validator.Validate
}

// NewScrapeHandler creates a new scrape handler
func NewScrapeHandler(service ScrapeService) *ScrapeHandler {
	return &ScrapeHandler{service: service, validate: validator.New()}
}

// TriggerScrape handles POST /api/scrape
func (h *ScrapeHandler) TriggerScrape(c *fiber.Ctx) error {
	var req pipeline.TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_request",
				"message": "Invalid request body",
			})
		}
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	}

	result, err := h.service.Trigger(c.UserContext(), req)
	if err != nil {
		return triggerError(c, err)
	}

	if result.JobID != nil {
		return c.Status(fiber.StatusAccepted).JSON(result)
	}
	return c.JSON(result)
}

// GetJob handles GET /api/scrape/jobs/:job_id
func (h *ScrapeHandler) GetJob(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("job_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": "Invalid job ID",
		})
	}

	job, err := h.service.Job(c.UserContext(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "Job not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "job_lookup_failed",
			"message": err.Error(),
		})
	}

	return c.JSON(job)
}

// GetSources handles GET /api/sources
func (h *ScrapeHandler) GetSources(c *fiber.Ctx) error {
	list, err := h.service.Sources(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "sources_failed",
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"sources": list,
		"total":   len(list),
	})
}

func triggerError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "scrape_failed"
	switch {
	case errors.Is(err, pipeline.ErrNoSource):
		status, code = fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, pipeline.ErrSourceNotFound):
		status, code = fiber.StatusNotFound, "source_not_found"
	case errors.Is(err, pipeline.ErrQueueFull):
		status, code = fiber.StatusServiceUnavailable, "queue_full"
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": err.Error(),
	})
}
