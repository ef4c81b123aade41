package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/config"
)

const slowRequest = 2 * time.Second

// healthPaths are polled by orchestrators and scrapers; successful hits are
// not logged.
var healthPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Setup configures all middleware for the application
func Setup(app *fiber.App, cfg *config.Config, log *zap.Logger) {
	app.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.Server.Debug,
	}))

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return uuid.New().String()
		},
	}))

	// Wildcard origins cannot be combined with credentials.
	origins := joinStrings(cfg.CORS.AllowedOrigins)
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     joinStrings(cfg.CORS.AllowedMethods),
		AllowHeaders:     joinStrings(cfg.CORS.AllowedHeaders),
		AllowCredentials: origins != "*",
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// Only triggers are limited; polling and health stay open.
	if cfg.RateLimit.Enabled {
		app.Use(limiter.New(limiter.Config{
			Next: func(c *fiber.Ctx) bool {
				return c.Method() != fiber.MethodPost
			},
			Max:        cfg.RateLimit.RequestsPerMinute,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":   "rate_limit_exceeded",
					"message": "Too many requests. Please try again later.",
				})
			},
		}))
	}

	app.Use(RequestLogger(log, cfg.Server.Debug))
	app.Use(RequestTiming())
}

// RequestLogger logs server errors, client errors and slow requests; other
// requests only in debug mode.
func RequestLogger(log *zap.Logger, debug bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()
		// The error handler has not written the response yet.
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		fields := []zap.Field{
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("ip", c.IP()),
		}

		if debug {
			fields = append(fields, zap.String("user_agent", c.Get(fiber.HeaderUserAgent)))
		}

		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch {
		case status >= 500:
			log.Error("Server error", fields...)
		case status >= 400:
			log.Warn("Client error", fields...)
		case duration > slowRequest:
			log.Warn("Slow request", fields...)
		case debug && !healthPaths[c.Path()]:
			log.Debug("Request completed", fields...)
		}

		return err
	}
}

// RequestTiming adds timing headers to responses
func RequestTiming() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		c.Set("X-Process-Time", time.Since(start).String())
		return err
	}
}

func joinStrings(strs []string) string {
	if len(strs) == 0 {
		return "*"
	}
	return strings.Join(strs, ",")
}
