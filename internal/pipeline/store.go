// Package pipeline runs sources end to end and keeps the job, source and
// analytics bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrSourceBusy     = errors.New("source is already being scraped")
	ErrQueueFull      = errors.New("scrape queue is full")
	ErrNoSource       = errors.New("source_id is required")
)

// CatalogStore reads categories and writes opportunities
type CatalogStore interface {
	Categories(ctx context.Context) ([]domain.Category, error)
	HashExists(ctx context.Context, hash string) (bool, error)
	InsertOpportunityWithHash(ctx context.Context, opp *domain.Opportunity, hash string) error
	FindSimilarOpportunity(ctx context.Context, source, title, organization string) (*domain.Opportunity, error)
	UpdateDescription(ctx context.Context, id uuid.UUID, description string) error
}

// JobStore persists scraping jobs
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.ScrapingJob) error
	FinishJob(ctx context.Context, job *domain.ScrapingJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*domain.ScrapingJob, error)
	ChildJobs(ctx context.Context, parent uuid.UUID) ([]*domain.ScrapingJob, error)
}

// SourceStore persists mutable source state and daily analytics
type SourceStore interface {
	ListSources(ctx context.Context) ([]domain.ScrapingSource, error)
	GetSource(ctx context.Context, id string) (domain.ScrapingSource, error)
	EnsureSource(ctx context.Context, src domain.ScrapingSource) error
	RecordSourceResult(ctx context.Context, id string, ok bool, at time.Time) (float64, error)
	AddDailyAnalytics(ctx context.Context, a domain.DailyAnalytics) error
}

// Store is everything the pipeline persists
type Store interface {
	CatalogStore
	JobStore
	SourceStore
}

// Locker hands out per-source run locks
type Locker interface {
	TryLock(ctx context.Context, key string) (storage.Lock, bool, error)
}

// HealthChecker pre-flights a source before a full scrape
type HealthChecker interface {
	HealthCheck(ctx context.Context, url string, headers map[string]string, timeout time.Duration) error
}
