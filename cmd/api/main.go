package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/api"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/api/middleware"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/config"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/llm"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/metrics"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/pipeline"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/scheduler"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/scraper"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/sources"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/pkg/logger"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Server.Debug, cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting opportunity scraper",
		zap.String("version", version),
		zap.Bool("debug", cfg.Server.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	pool, err := storage.NewPostgresPool(ctx, cfg.Database.Postgres.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	db := storage.NewPostgres(pool)
	defer db.Close()

	if cfg.Database.Postgres.Migrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	var locker pipeline.Locker = storage.NewLocalLocker()
	if cfg.Database.Redis.Enabled() {
		rdb, err := storage.NewRedisClient(ctx, cfg.Database.Redis.URL)
		if err != nil {
			logger.Warn("Redis unavailable, using in-process run locks", zap.Error(err))
		} else {
			defer rdb.Close()
			locker = storage.NewRedisLocker(rdb, cfg.Database.Redis.LockTTL)
		}
	}

	// Sources
	registry, err := sources.Load(cfg.Scraper.SourcesFile)
	if err != nil {
		logger.Fatal("Failed to load source registry", zap.Error(err))
	}

	// Scraping
	sc := cfg.Scraper
	fetcher := scraper.NewHTTPFetcher(nil, scraper.FetcherConfig{
		UserAgent:      sc.UserAgent,
		DefaultTimeout: sc.RequestTimeout,
	}, logger.Named("fetcher"))

	var renderer scraper.Renderer
	if sc.Browser.Enabled {
		browser := scraper.NewBrowserRenderer(scraper.BrowserConfig{
			Timeout:       sc.Browser.Timeout,
			UserAgent:     sc.UserAgent,
			ProxyURL:      sc.Browser.ProxyURL,
			DisableImages: true,
		}, logger.Named("browser"))
		defer browser.Close()
		renderer = browser
	}

	model, err := llm.New(ctx, cfg.LLM, logger.Named("llm"))
	if err != nil {
		logger.Fatal("Failed to create language model client", zap.Error(err))
	}

	extractLog := logger.Named("extractor")
	chain := scraper.NewChain(extractLog,
		scraper.NewStructuredExtractor(sc.MaxPerPage, extractLog),
		scraper.NewAIExtractor(model, cfg.LLM.MaxInputChars, sc.MaxPerPage, extractLog),
		scraper.NewHeuristicExtractor(sc.MaxPerPage, extractLog),
	)

	m := metrics.New()

	runner := pipeline.NewRunner(pipeline.RunnerDeps{
		Store:    db,
		Locker:   locker,
		Health:   fetcher,
		Loader:   scraper.NewListingLoader(fetcher, renderer, sc.RequestTimeout, logger.Named("listing")),
		Chain:    chain,
		Enricher: scraper.NewDetailEnricher(fetcher, sources.DetailSelectors, sc.DetailTimeout, logger.Named("enricher")),
		Metrics:  m,
	}, pipeline.Options{
		HealthTimeout:   sc.HealthTimeout,
		DefaultDelay:    sc.DefaultDelay,
		DefaultRetries:  sc.DefaultRetries,
		EnrichDetails:   sc.EnrichDetails,
		DefaultCategory: cfg.Scraper.DefaultCategory,
	}, logger.Named("runner"))

	queue := pipeline.NewQueue(cfg.Queue.Size, m, logger.Named("queue"))
	queue.Start(ctx)

	service := pipeline.NewService(registry, db, runner, queue, pipeline.ServiceOptions{
		FreshnessWindow: sc.FreshnessWindow,
		MinSuccessRate:  sc.MinSuccessRate,
	}, logger.Named("service"))

	if err := service.SyncRegistry(ctx); err != nil {
		logger.Fatal("Failed to sync source registry", zap.Error(err))
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(service, cfg.Scheduler.Spec, logger.Named("scheduler"))
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// HTTP
	app := fiber.New(fiber.Config{
		AppName:               "Opportunity Scraper v" + version,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: !cfg.Server.Debug,
		ErrorHandler:          api.ErrorHandler,
	})

	middleware.Setup(app, cfg, logger.Named("http"))
	api.SetupRoutes(app, cfg, &api.Dependencies{
		DB:            db,
		ScrapeService: service,
		Metrics:       m.Handler(),
	})

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down gracefully...")
		if sched != nil {
			sched.Stop()
		}
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logger.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting",
		zap.String("address", addr),
		zap.String("llm_backend", cfg.LLM.DefaultBackend),
		zap.Int("sources", registry.Len()),
		zap.Bool("browser", sc.Browser.Enabled),
	)

	if err := app.Listen(addr); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}

	// Cancel whatever run is in flight; its job is still recorded as failed.
	stop()
	queue.Stop()
	logger.Info("Shutdown complete")
}
