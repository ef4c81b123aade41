package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/category"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/dedup"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/metrics"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/publisher"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/scraper"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
)

const (
	// bookkeepingTimeout bounds the terminal writes of a run, which happen
	// even after the run's context is cancelled.
	bookkeepingTimeout = 10 * time.Second
	// minDescriptionGain is how much longer a re-scraped description must
	// be before it replaces a stored one.
	minDescriptionGain = 50
)

// Options tune a Runner
type Options struct {
	HealthTimeout   time.Duration
	DefaultDelay    time.Duration
	DefaultRetries  int
	EnrichDetails   bool
	DefaultCategory string
}

// Runner executes one source at a time: health check, listing fetch,
// extraction, filtering, enrichment, dedup, categorization and publication.
type Runner struct {
	store    Store
	locker   Locker
	health   HealthChecker
	loader   *scraper.ListingLoader
	chain    *scraper.Chain
	enricher *scraper.DetailEnricher
	writer   *publisher.Writer
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

// RunnerDeps are the collaborators of a Runner. Metrics may be nil.
type RunnerDeps struct {
	Store    Store
	Locker   Locker
	Health   HealthChecker
	Loader   *scraper.ListingLoader
	Chain    *scraper.Chain
	Enricher *scraper.DetailEnricher
	Metrics  *metrics.Metrics
}

// NewRunner wires a runner
func NewRunner(deps RunnerDeps, opts Options, logger *zap.Logger) *Runner {
	if deps.Locker == nil {
		deps.Locker = storage.NewLocalLocker()
	}
	return &Runner{
		store:    deps.Store,
		locker:   deps.Locker,
		health:   deps.Health,
		loader:   deps.Loader,
		chain:    deps.Chain,
		enricher: deps.Enricher,
		writer:   publisher.NewWriter(deps.Store, logger.Named("publisher")),
		metrics:  deps.Metrics,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

// RunSource scrapes src and publishes new opportunities, recording the
// outcome on job. Failures are captured on the job rather than returned;
// job is always terminal afterwards.
func (r *Runner) RunSource(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig) {
	src = r.withDefaults(src)
	log := r.logger.With(zap.String("source", src.ID), zap.String("job_id", job.ID.String()))
	log.Info("Starting source run")

	err := r.locked(ctx, src.ID, func() error {
		return r.scrape(ctx, job, src, log)
	})
	r.finish(ctx, job, src, err, log)
}

// UpdateDescriptions re-scrapes src and lengthens the descriptions of
// opportunities already in the catalog. At most limit rows are updated
// when limit is positive.
func (r *Runner) UpdateDescriptions(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig, limit int) {
	src = r.withDefaults(src)
	log := r.logger.With(zap.String("source", src.ID), zap.String("job_id", job.ID.String()))
	log.Info("Starting description update")

	err := r.locked(ctx, src.ID, func() error {
		return r.refresh(ctx, job, src, limit, log)
	})
	r.finish(ctx, job, src, err, log)
}

// Preview fetches and extracts src without persisting anything
func (r *Runner) Preview(ctx context.Context, src domain.SourceConfig) ([]domain.ScrapedOpportunity, string, error) {
	src = r.withDefaults(src)
	candidates, tier, err := r.collect(ctx, src, scraper.NewPoliteness(src.RequestConfig.Delay))
	if err != nil {
		return nil, "", err
	}
	return candidates, tier, nil
}

func (r *Runner) withDefaults(src domain.SourceConfig) domain.SourceConfig {
	if src.RequestConfig.Delay <= 0 {
		src.RequestConfig.Delay = r.opts.DefaultDelay
	}
	if src.RequestConfig.Retries <= 0 {
		src.RequestConfig.Retries = r.opts.DefaultRetries
	}
	return src
}

func (r *Runner) locked(ctx context.Context, sourceID string, fn func() error) error {
	lock, ok, err := r.locker.TryLock(ctx, sourceID)
	if err != nil {
		r.logger.Warn("Run lock unavailable, continuing unlocked", zap.String("source", sourceID), zap.Error(err))
		return r.recovered(sourceID, fn)
	}
	if !ok {
		return ErrSourceBusy
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			r.logger.Warn("Failed to release run lock", zap.String("source", sourceID), zap.Error(err))
		}
	}()
	return r.recovered(sourceID, fn)
}

// recovered runs fn and converts a panic into an error, so the job and
// the source's success rate are still recorded.
func (r *Runner) recovered(sourceID string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Source run panicked",
				zap.String("source", sourceID),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *Runner) scrape(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig, log *zap.Logger) error {
	categories, err := r.store.Categories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	mapper := category.NewMapper(categories, r.opts.DefaultCategory).ForSource(src)

	polite := scraper.NewPoliteness(src.RequestConfig.Delay)
	candidates, _, err := r.collect(ctx, src, polite)
	if err != nil {
		return err
	}
	job.Found = len(candidates)

	checker := dedup.NewChecker(r.store)
	for _, opp := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		opp = r.enrich(ctx, opp, src, polite)

		hash, duplicate, err := checker.Check(ctx, opp)
		if err != nil {
			job.Errors++
			log.Warn("Dedup lookup failed", zap.String("title", opp.Title), zap.Error(err))
			continue
		}
		if duplicate {
			job.Duplicates++
			continue
		}

		categoryID, ok := mapper.Categorize(opp)
		if !ok {
			log.Warn("No category available, skipping", zap.String("title", opp.Title))
			continue
		}

		_, outcome, err := r.writer.Publish(ctx, opp, categoryID, hash, src.ID)
		switch {
		case err != nil:
			job.Errors++
			log.Warn("Failed to publish opportunity", zap.String("title", opp.Title), zap.Error(err))
		case outcome == publisher.Duplicate:
			checker.Remember(hash)
			job.Duplicates++
		default:
			checker.Remember(hash)
			job.Published++
		}
	}
	return nil
}

func (r *Runner) refresh(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig, limit int, log *zap.Logger) error {
	polite := scraper.NewPoliteness(src.RequestConfig.Delay)
	candidates, _, err := r.collect(ctx, src, polite)
	if err != nil {
		return err
	}
	job.Found = len(candidates)

	for _, opp := range candidates {
		if limit > 0 && job.Updated >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		existing, err := r.store.FindSimilarOpportunity(ctx, src.ID, opp.Title, opp.Organization)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			job.Errors++
			log.Warn("Lookup of existing opportunity failed", zap.String("title", opp.Title), zap.Error(err))
			continue
		}

		opp = r.enrich(ctx, opp, src, polite)
		if len([]rune(opp.Description)) < len([]rune(existing.Description))+minDescriptionGain {
			continue
		}
		if err := r.store.UpdateDescription(ctx, existing.ID, opp.Description); err != nil {
			job.Errors++
			log.Warn("Failed to update description", zap.String("id", existing.ID.String()), zap.Error(err))
			continue
		}
		job.Updated++
	}
	return nil
}

// collect runs health check, listing fetch, extraction and keyword
// filtering.
func (r *Runner) collect(ctx context.Context, src domain.SourceConfig, polite *scraper.Politeness) ([]domain.ScrapedOpportunity, string, error) {
	listingURL := src.ListingURL(1)
	if err := r.health.HealthCheck(ctx, listingURL, src.Headers(), r.opts.HealthTimeout); err != nil {
		return nil, "", fmt.Errorf("health check: %w", err)
	}

	pages, err := r.loader.Load(ctx, src, polite)
	if err != nil {
		return nil, "", err
	}

	filter := scraper.NewKeywordFilter(src.Filters)
	var (
		candidates []domain.ScrapedOpportunity
		lastTier   string
	)
	for _, page := range pages {
		found, tier := r.chain.Extract(ctx, page, src)
		r.metrics.RecordTier(tier)
		if tier != "" {
			lastTier = tier
		}
		candidates = append(candidates, filter.Apply(found)...)
	}
	return candidates, lastTier, nil
}

func (r *Runner) enrich(ctx context.Context, opp domain.ScrapedOpportunity, src domain.SourceConfig, polite *scraper.Politeness) domain.ScrapedOpportunity {
	if r.enricher == nil || !r.opts.EnrichDetails || src.SkipEnrichment || opp.ApplicationURL == "" {
		return opp
	}
	if err := polite.Wait(ctx); err != nil {
		return opp
	}
	return r.enricher.Enrich(ctx, opp, src)
}

// finish writes the job's terminal state, the source's success rate and
// the day's analytics. A busy source is not counted against its rate.
func (r *Runner) finish(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig, runErr error, log *zap.Logger) {
	now := r.now()
	if runErr != nil {
		job.Errors++
		job.Fail(now, runErr)
		log.Warn("Source run failed", zap.Error(runErr), zap.Int64("execution_time_ms", job.ExecutionTimeMS))
	} else {
		job.Complete(now)
		log.Info("Source run completed",
			zap.Int("found", job.Found),
			zap.Int("published", job.Published),
			zap.Int("duplicates", job.Duplicates),
			zap.Int("updated", job.Updated),
			zap.Int("errors", job.Errors),
			zap.Int64("execution_time_ms", job.ExecutionTimeMS),
		)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if err := r.store.FinishJob(ctx, job); err != nil {
		log.Error("Failed to record job result", zap.Error(err))
	}

	if !errors.Is(runErr, ErrSourceBusy) {
		rate, err := r.store.RecordSourceResult(ctx, src.ID, runErr == nil, now)
		if err != nil {
			log.Error("Failed to update source success rate", zap.Error(err))
		} else {
			r.metrics.SetSuccessRate(src.ID, rate)
		}
	}

	err := r.store.AddDailyAnalytics(ctx, domain.DailyAnalytics{SourceID: src.ID, Day: now, RunCounts: job.RunCounts})
	if err != nil {
		log.Error("Failed to record analytics", zap.Error(err))
	}

	r.metrics.RecordRun(job)
}
