package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/sources"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
)

// Trigger actions and source types
const (
	ActionTest               = "test"
	ActionUpdateDescriptions = "update_descriptions"

	SourceTypeSpecific    = "specific"
	SourceTypeAllSpecific = "all_specific"
)

const defaultSampleSize = 5

// TriggerRequest is the body of a scrape trigger
type TriggerRequest struct {
	SourceID      string `json:"source_id,omitempty" validate:"omitempty,max=100"`
	SourceType    string `json:"source_type,omitempty" validate:"omitempty,oneof=specific all_specific"`
	Action        string `json:"action,omitempty" validate:"omitempty,oneof=test update_descriptions"`
	ManualTrigger bool   `json:"manual_trigger,omitempty"`
	UpdateAll     bool   `json:"update_all,omitempty"`
	Limit         int    `json:"limit,omitempty" validate:"gte=0,lte=1000"`
}

// TriggerResult is returned to the caller of a trigger
type TriggerResult struct {
	Message string                      `json:"message"`
	JobID   *uuid.UUID                  `json:"job_id,omitempty"`
	Status  string                      `json:"status"`
	Sources []string                    `json:"sources,omitempty"`
	Found   int                         `json:"found,omitempty"`
	Tier    string                      `json:"extraction_tier,omitempty"`
	Sample  []domain.ScrapedOpportunity `json:"sample,omitempty"`
}

// JobView is a job with its per-source children, if any
type JobView struct {
	*domain.ScrapingJob
	Children []*domain.ScrapingJob `json:"children,omitempty"`
}

// SourceView is a source's recipe summary joined with its persisted state
type SourceView struct {
	domain.ScrapingSource
	Pagination   domain.PaginationType `json:"pagination,omitempty"`
	HasSelectors bool                  `json:"has_selectors"`
	Persisted    bool                  `json:"persisted"`
}

// ServiceOptions tune source selection
type ServiceOptions struct {
	FreshnessWindow time.Duration
	MinSuccessRate  float64
	SampleSize      int
}

// Service turns trigger requests into queued runs
type Service struct {
	registry *sources.Registry
	store    Store
	runner   *Runner
	queue    *Queue
	opts     ServiceOptions
	now      func() time.Time
	logger   *zap.Logger
}

// NewService wires a service
func NewService(registry *sources.Registry, store Store, runner *Runner, queue *Queue, opts ServiceOptions, logger *zap.Logger) *Service {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = 24 * time.Hour
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = defaultSampleSize
	}
	return &Service{
		registry: registry,
		store:    store,
		runner:   runner,
		queue:    queue,
		opts:     opts,
		now:      time.Now,
		logger:   logger,
	}
}

// SyncRegistry makes sure every registry source has a persisted row
func (s *Service) SyncRegistry(ctx context.Context) error {
	for _, cfg := range s.registry.All() {
		if err := s.store.EnsureSource(ctx, persistedFor(cfg)); err != nil {
			return fmt.Errorf("sync source %s: %w", cfg.ID, err)
		}
	}
	s.logger.Info("Source registry synced", zap.Int("sources", s.registry.Len()))
	return nil
}

// Trigger dispatches req. Runs are queued and reported by job id; the
// test action runs inline and returns a sample.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	switch req.Action {
	case ActionTest:
		return s.test(ctx, req)

	case ActionUpdateDescriptions:
		targets, err := s.updateTargets(ctx, req)
		if err != nil {
			return nil, err
		}
		limit := req.Limit
		return s.dispatch(ctx, "update descriptions", targets,
			func(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig, done domain.RunCounts) {
				remaining := 0
				if limit > 0 {
					remaining = limit - done.Updated
				}
				s.runner.UpdateDescriptions(ctx, job, src, remaining)
			},
			func(done domain.RunCounts) bool {
				return limit > 0 && done.Updated >= limit
			})
	}

	targets, err := s.scrapeTargets(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, "scrape", targets,
		func(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig, _ domain.RunCounts) {
			s.runner.RunSource(ctx, job, src)
		}, nil)
}

// Job returns a job and, for bulk jobs, its children
func (s *Service) Job(ctx context.Context, id uuid.UUID) (*JobView, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &JobView{ScrapingJob: job}
	if job.Kind == domain.JobKindBulk {
		if view.Children, err = s.store.ChildJobs(ctx, id); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// Sources lists registry sources joined with persisted state, followed by
// persisted sources that have no registry recipe.
func (s *Service) Sources(ctx context.Context) ([]SourceView, error) {
	persisted, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.ScrapingSource, len(persisted))
	for _, p := range persisted {
		byID[p.ID] = p
	}

	var out []SourceView
	for _, cfg := range s.registry.All() {
		view := SourceView{
			ScrapingSource: persistedFor(cfg),
			Pagination:     cfg.Pagination.Type,
			HasSelectors:   !cfg.Selectors.Empty(),
		}
		if p, ok := byID[cfg.ID]; ok {
			view.ScrapingSource = p
			view.Persisted = true
			delete(byID, cfg.ID)
		}
		out = append(out, view)
	}
	for _, p := range persisted {
		if _, ok := byID[p.ID]; ok {
			out = append(out, SourceView{ScrapingSource: p, Pagination: domain.PaginationURL, Persisted: true})
		}
	}
	return out, nil
}

func (s *Service) test(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if req.SourceID == "" {
		return nil, ErrNoSource
	}
	src, err := s.resolve(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}

	found, tier, err := s.runner.Preview(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("test scrape %s: %w", src.ID, err)
	}

	sample := found
	if len(sample) > s.opts.SampleSize {
		sample = sample[:s.opts.SampleSize]
	}
	return &TriggerResult{
		Message: fmt.Sprintf("Test scrape of %s found %d opportunities", src.Name, len(found)),
		Status:  "ok",
		Sources: []string{src.ID},
		Found:   len(found),
		Tier:    tier,
		Sample:  sample,
	}, nil
}

func (s *Service) scrapeTargets(ctx context.Context, req TriggerRequest) ([]domain.SourceConfig, error) {
	if req.SourceID != "" {
		src, err := s.resolve(ctx, req.SourceID)
		if err != nil {
			return nil, err
		}
		return []domain.SourceConfig{src}, nil
	}

	if req.SourceType == SourceTypeAllSpecific {
		return limitTargets(s.registry.All(), req.Limit), nil
	}

	persisted, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	now := s.now()
	var targets []domain.SourceConfig
	for _, p := range persisted {
		if !p.IsActive {
			continue
		}
		if !req.ManualTrigger && !p.IsDue(now, s.opts.FreshnessWindow, s.opts.MinSuccessRate) {
			continue
		}
		targets = append(targets, s.configFor(p))
	}
	return limitTargets(targets, req.Limit), nil
}

func (s *Service) updateTargets(ctx context.Context, req TriggerRequest) ([]domain.SourceConfig, error) {
	if req.SourceID != "" {
		src, err := s.resolve(ctx, req.SourceID)
		if err != nil {
			return nil, err
		}
		return []domain.SourceConfig{src}, nil
	}
	if !req.UpdateAll {
		return nil, ErrNoSource
	}
	return s.registry.All(), nil
}

// resolve finds a source by id in the registry, then among persisted
// generic sources.
func (s *Service) resolve(ctx context.Context, id string) (domain.SourceConfig, error) {
	if cfg, ok := s.registry.Get(id); ok {
		return cfg, nil
	}
	p, err := s.store.GetSource(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.SourceConfig{}, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	if err != nil {
		return domain.SourceConfig{}, fmt.Errorf("load source %s: %w", id, err)
	}
	return p.AsConfig(), nil
}

func (s *Service) configFor(p domain.ScrapingSource) domain.SourceConfig {
	if cfg, ok := s.registry.Get(p.ID); ok {
		return cfg
	}
	return p.AsConfig()
}

type runFunc func(ctx context.Context, job *domain.ScrapingJob, src domain.SourceConfig, done domain.RunCounts)

// dispatch creates the job rows synchronously and queues the work. One
// target gets a source job; several get a bulk job with a child per source.
func (s *Service) dispatch(ctx context.Context, what string, targets []domain.SourceConfig, run runFunc, stop func(domain.RunCounts) bool) (*TriggerResult, error) {
	if len(targets) == 0 {
		return &TriggerResult{Message: "No sources due for scraping", Status: string(domain.JobStatusCompleted)}, nil
	}

	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}

	var (
		job  *domain.ScrapingJob
		task Task
	)
	if len(targets) == 1 {
		src := targets[0]
		job = domain.NewScrapingJob(domain.JobKindSource, src.ID, nil)
		task = Task{
			Name: what + " " + src.ID,
			Run: func(ctx context.Context) {
				s.guarded(job, func() { run(ctx, job, src, domain.RunCounts{}) })
			},
		}
	} else {
		job = domain.NewScrapingJob(domain.JobKindBulk, "", nil)
		task = Task{
			Name: what + " bulk",
			Run: func(ctx context.Context) {
				s.guarded(job, func() { s.runBulk(ctx, job, targets, run, stop) })
			},
		}
	}
	task.Drop = func() {
		s.abandon(job, errors.New("scraper shut down before the job started"))
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Submit(task); err != nil {
		s.abandon(job, err)
		return nil, err
	}

	s.logger.Info("Job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.Strings("sources", ids),
	)

	id := job.ID
	return &TriggerResult{
		Message: fmt.Sprintf("Started %s for %d source(s)", what, len(targets)),
		JobID:   &id,
		Status:  string(domain.JobStatusRunning),
		Sources: ids,
	}, nil
}

func (s *Service) runBulk(ctx context.Context, bulk *domain.ScrapingJob, targets []domain.SourceConfig, run runFunc, stop func(domain.RunCounts) bool) {
	var ran, failed int
	for _, src := range targets {
		if ctx.Err() != nil || (stop != nil && stop(bulk.RunCounts)) {
			break
		}

		child := domain.NewScrapingJob(domain.JobKindSource, src.ID, &bulk.ID)
		if err := s.store.CreateJob(ctx, child); err != nil {
			s.logger.Error("Failed to create source job", zap.String("source", src.ID), zap.Error(err))
			bulk.Errors++
			failed++
			ran++
			continue
		}

		counts := bulk.RunCounts
		s.guarded(child, func() { run(ctx, child, src, counts) })
		bulk.Add(child.RunCounts)
		ran++
		if child.Status == domain.JobStatusFailed {
			failed++
		}
	}

	now := s.now()
	switch {
	case ctx.Err() != nil:
		bulk.Fail(now, fmt.Errorf("interrupted after %d of %d sources: %w", ran, len(targets), ctx.Err()))
	case ran > 0 && failed == ran:
		bulk.Fail(now, fmt.Errorf("all %d sources failed", failed))
	default:
		bulk.Complete(now)
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	if err := s.store.FinishJob(finishCtx, bulk); err != nil {
		s.logger.Error("Failed to record bulk job result", zap.String("job_id", bulk.ID.String()), zap.Error(err))
	}
	s.logger.Info("Bulk job finished",
		zap.String("job_id", bulk.ID.String()),
		zap.String("status", string(bulk.Status)),
		zap.Int("sources", ran),
		zap.Int("failed", failed),
		zap.Int("published", bulk.Published),
	)
}

// guarded runs fn and fails job if fn panics before the job is terminal
func (s *Service) guarded(job *domain.ScrapingJob, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Job panicked",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			if !job.Terminal() {
				s.abandon(job, fmt.Errorf("panic: %v", p))
			}
		}
	}()
	fn()
}

// abandon fails a job that will never run or that crashed
func (s *Service) abandon(job *domain.ScrapingJob, reason error) {
	job.Fail(s.now(), reason)
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	if err := s.store.FinishJob(ctx, job); err != nil {
		s.logger.Error("Failed to record abandoned job", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

func persistedFor(cfg domain.SourceConfig) domain.ScrapingSource {
	return domain.ScrapingSource{
		ID:              cfg.ID,
		Name:            cfg.Name,
		URL:             cfg.ListingURL(1),
		Type:            domain.SourceTypeSpecific,
		IsActive:        true,
		SuccessRate:     100,
		CategoryMapping: cfg.CategoryMapping,
	}
}

func limitTargets(targets []domain.SourceConfig, limit int) []domain.SourceConfig {
	if limit > 0 && len(targets) > limit {
		return targets[:limit]
	}
	return targets
}
