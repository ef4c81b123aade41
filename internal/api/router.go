package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/api/handlers"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/config"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/pkg/logger"
)

// Dependencies holds all service dependencies for handlers
type Dependencies struct {
	DB            handlers.Pinger
	ScrapeService handlers.ScrapeService
	Metrics       http.Handler
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, cfg *config.Config, deps *Dependencies) {
	// Health check routes (no prefix)
	app.Get("/health", handlers.HealthCheck(deps.DB))
	app.Get("/ready", handlers.ReadinessCheck(deps.DB))
	app.Get("/", handlers.Root(cfg))
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	api := app.Group("/api")

	scrapeHandler := handlers.NewScrapeHandler(deps.ScrapeService)
	api.Post("/scrape", scrapeHandler.TriggerScrape)
	api.Get("/scrape/jobs/:job_id", scrapeHandler.GetJob)
	api.Get("/sources", scrapeHandler.GetSources)
}

// ErrorHandler handles errors globally
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logger.Error("Request error",
		zap.Int("status", code),
		zap.String("path", c.Path()),
		zap.Error(err),
	)

	return c.Status(code).JSON(fiber.Map{
		"error":   "request_failed",
		"message": message,
		"path":    c.Path(),
	})
}
