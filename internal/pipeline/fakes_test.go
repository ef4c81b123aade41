package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/scraper"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/sources"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
)

// memStore is an in-memory Store
type memStore struct {
	mu            sync.Mutex
	categories    []domain.Category
	opportunities map[uuid.UUID]*domain.Opportunity
	hashes        map[string]uuid.UUID
	jobs          map[uuid.UUID]*domain.ScrapingJob
	sources       map[string]domain.ScrapingSource
	analytics     map[string]domain.RunCounts
}

func newMemStore() *memStore {
	return &memStore{
		categories: []domain.Category{
			{ID: uuid.New(), Name: "Jobs", Slug: domain.CategoryJobs},
			{ID: uuid.New(), Name: "Scholarships", Slug: domain.CategoryScholarships},
		},
		opportunities: make(map[uuid.UUID]*domain.Opportunity),
		hashes:        make(map[string]uuid.UUID),
		jobs:          make(map[uuid.UUID]*domain.ScrapingJob),
		sources:       make(map[string]domain.ScrapingSource),
		analytics:     make(map[string]domain.RunCounts),
	}
}

func (m *memStore) Categories(context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Category(nil), m.categories...), nil
}

func (m *memStore) HashExists(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.hashes[hash]
	return ok, nil
}

func (m *memStore) InsertOpportunityWithHash(_ context.Context, opp *domain.Opportunity, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[hash]; ok {
		return storage.ErrDuplicateHash
	}
	cp := *opp
	m.opportunities[opp.ID] = &cp
	m.hashes[hash] = opp.ID
	return nil
}

func (m *memStore) FindSimilarOpportunity(_ context.Context, source, title, organization string) (*domain.Opportunity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.opportunities {
		if o.Source != source || !strings.Contains(strings.ToLower(o.Title), strings.ToLower(title)) {
			continue
		}
		if organization != "" && !strings.Contains(strings.ToLower(o.Organization), strings.ToLower(organization)) {
			continue
		}
		cp := *o
		return &cp, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) UpdateDescription(_ context.Context, id uuid.UUID, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.opportunities[id]
	if !ok {
		return storage.ErrNotFound
	}
	o.Description = description
	return nil
}

func (m *memStore) CreateJob(_ context.Context, job *domain.ScrapingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) FinishJob(_ context.Context, job *domain.ScrapingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*domain.ScrapingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ChildJobs(_ context.Context, parent uuid.UUID) ([]*domain.ScrapingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ScrapingJob
	for _, job := range m.jobs {
		if job.ParentID != nil && *job.ParentID == parent {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *memStore) ListSources(context.Context) ([]domain.ScrapingSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ScrapingSource, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuccessRate != out[j].SuccessRate {
			return out[i].SuccessRate > out[j].SuccessRate
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) GetSource(_ context.Context, id string) (domain.ScrapingSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return domain.ScrapingSource{}, storage.ErrNotFound
	}
	return s, nil
}

func (m *memStore) EnsureSource(_ context.Context, src domain.ScrapingSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sources[src.ID]; ok {
		existing.Name, existing.URL = src.Name, src.URL
		m.sources[src.ID] = existing
		return nil
	}
	m.sources[src.ID] = src
	return nil
}

func (m *memStore) RecordSourceResult(_ context.Context, id string, ok bool, at time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sources[id]
	if !found {
		return 0, storage.ErrNotFound
	}
	s.SuccessRate = domain.NextSuccessRate(s.SuccessRate, ok)
	s.LastScrapedAt = &at
	m.sources[id] = s
	return s.SuccessRate, nil
}

func (m *memStore) AddDailyAnalytics(_ context.Context, a domain.DailyAnalytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.SourceID + "/" + a.Day.UTC().Format("2006-01-02")
	counts := m.analytics[key]
	counts.Add(a.RunCounts)
	m.analytics[key] = counts
	return nil
}

func (m *memStore) job(id uuid.UUID) *domain.ScrapingJob {
	job, _ := m.GetJob(context.Background(), id)
	return job
}

func (m *memStore) source(id string) domain.ScrapingSource {
	s, _ := m.GetSource(context.Background(), id)
	return s
}

func (m *memStore) opportunityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opportunities)
}

// site is a fake target website
type site struct {
	*httptest.Server
	down    map[string]bool
	gets    int32
	details map[string]string
}

var detailText = strings.Repeat("The role leads backend services for cross-border payments. ", 5)

const siteListing = `<html><body>
<div class="card">
  <h2 class="title">Senior backend engineer wanted now</h2>
  <p class="desc">Work on distributed systems at scale now</p>
  <a class="link" href="/detail/1">Apply</a>
</div>
<div class="card">
  <h2 class="title">Scholarship for engineering students</h2>
  <p class="desc">Expired posting for a fully funded degree programme</p>
  <a class="link" href="/detail/2">Apply</a>
</div>
<div class="card">
  <h2 class="title">Programme officer for education</h2>
  <p class="desc">Coordinate education programmes across the region</p>
  <a class="link" href="/detail/missing">Apply</a>
</div>
</body></html>`

const repeatedListing = `<html><body>
<div class="card">
  <h2 class="title">Data analyst for health programmes</h2>
  <p class="desc">Analyse survey data for the health programme team</p>
</div>
<div class="card">
  <h2 class="title">Data analyst for health programmes</h2>
  <p class="desc">Analyse survey data for the health programme team</p>
</div>
</body></html>`

const genericListing = `<html><body>
<div class="job-post">
  <h3>Field coordinator for the northern region</h3>
  <p>Coordinate field teams and report to the country director on progress every month.</p>
</div>
</body></html>`

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{
		down: make(map[string]bool),
		details: map[string]string{
			"/detail/1": `<html><body><div class="description">` + detailText + `</div></body></html>`,
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.down[r.URL.Path] {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		atomic.AddInt32(&s.gets, 1)
		switch {
		case r.URL.Path == "/jobs" || r.URL.Path == "/other":
			_, _ = w.Write([]byte(siteListing))
		case r.URL.Path == "/repeated":
			_, _ = w.Write([]byte(repeatedListing))
		case r.URL.Path == "/generic":
			_, _ = w.Write([]byte(genericListing))
		case s.details[r.URL.Path] != "":
			_, _ = w.Write([]byte(s.details[r.URL.Path]))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) source(id, path string) domain.SourceConfig {
	return domain.SourceConfig{
		ID:          id,
		Name:        "Source " + id,
		BaseURL:     s.URL,
		ListingPath: path,
		Selectors: domain.Selectors{
			Container:   ".card",
			Title:       ".title",
			Description: ".desc",
			Link:        "a.link",
		},
		Pagination: domain.Pagination{Type: domain.PaginationURL, MaxPages: 1},
	}
}

type failingModel struct{ calls int32 }

func (f *failingModel) Complete(context.Context, string, string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return "", fmt.Errorf("dial tcp: connection refused")
}

// flakyStore fails the first failInserts opportunity writes
type flakyStore struct {
	*memStore
	failInserts int32
}

func (f *flakyStore) InsertOpportunityWithHash(ctx context.Context, opp *domain.Opportunity, hash string) error {
	if atomic.AddInt32(&f.failInserts, -1) >= 0 {
		return fmt.Errorf("insert opportunity: connection reset")
	}
	return f.memStore.InsertOpportunityWithHash(ctx, opp, hash)
}

type panicExtractor struct{}

func (panicExtractor) Name() string { return "panic" }

func (panicExtractor) Extract(context.Context, scraper.Page, domain.SourceConfig) []domain.ScrapedOpportunity {
	panic("selector table is nil")
}

type harness struct {
	store  *memStore
	site   *site
	runner *Runner
	model  *failingModel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	store := newMemStore()
	s := newSite(t)
	model := &failingModel{}

	fetcher := scraper.NewHTTPFetcher(nil, scraper.FetcherConfig{UserAgent: "test", DefaultTimeout: 5 * time.Second}, logger)
	runner := NewRunner(RunnerDeps{
		Store:  store,
		Health: fetcher,
		Loader: scraper.NewListingLoader(fetcher, nil, 5*time.Second, logger),
		Chain: scraper.NewChain(logger,
			scraper.NewStructuredExtractor(20, logger),
			scraper.NewAIExtractor(model, 8000, 20, logger),
			scraper.NewHeuristicExtractor(20, logger),
		),
		Enricher: scraper.NewDetailEnricher(fetcher, sources.DetailSelectors, 5*time.Second, logger),
	}, Options{
		HealthTimeout:   2 * time.Second,
		DefaultDelay:    time.Millisecond,
		DefaultRetries:  1,
		EnrichDetails:   true,
		DefaultCategory: domain.CategoryJobs,
	}, logger)

	return &harness{store: store, site: s, runner: runner, model: model}
}

func (h *harness) ensure(t *testing.T, cfgs ...domain.SourceConfig) {
	t.Helper()
	for _, cfg := range cfgs {
		require.NoError(t, h.store.EnsureSource(context.Background(), persistedFor(cfg)))
	}
}

func (h *harness) newJob(t *testing.T, sourceID string) *domain.ScrapingJob {
	t.Helper()
	job := domain.NewScrapingJob(domain.JobKindSource, sourceID, nil)
	require.NoError(t, h.store.CreateJob(context.Background(), job))
	return job
}
