package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/sources"
	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/storage"
)

func newService(t *testing.T, h *harness, queueSize int, start bool, opts ServiceOptions) *Service {
	t.Helper()
	registry, err := sources.New(
		h.site.source("board", "/jobs"),
		h.site.source("broken", "/broken"),
	)
	require.NoError(t, err)

	queue := NewQueue(queueSize, nil, zap.NewNop())
	if start {
		queue.Start(context.Background())
	}
	t.Cleanup(queue.Stop)

	svc := NewService(registry, h.store, h.runner, queue, opts, zap.NewNop())
	require.NoError(t, svc.SyncRegistry(context.Background()))
	return svc
}

func waitJob(t *testing.T, svc *Service, id uuid.UUID) *JobView {
	t.Helper()
	var view *JobView
	require.Eventually(t, func() bool {
		v, err := svc.Job(context.Background(), id)
		if err != nil {
			return false
		}
		view = v
		return v.Status != domain.JobStatusRunning
	}, 10*time.Second, 20*time.Millisecond)
	return view
}

func TestTriggerSingleSource(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, true, ServiceOptions{})

	res, err := svc.Trigger(context.Background(), TriggerRequest{SourceID: "board"})
	require.NoError(t, err)
	require.NotNil(t, res.JobID)
	assert.Equal(t, string(domain.JobStatusRunning), res.Status)
	assert.Equal(t, []string{"board"}, res.Sources)

	view := waitJob(t, svc, *res.JobID)
	assert.Equal(t, domain.JobStatusCompleted, view.Status)
	assert.Equal(t, domain.JobKindSource, view.Kind)
	assert.Equal(t, 3, view.Published)
	assert.Empty(t, view.Children)
}

func TestTriggerBulkIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	h.site.down["/broken"] = true
	svc := newService(t, h, 4, true, ServiceOptions{})

	res, err := svc.Trigger(context.Background(), TriggerRequest{SourceType: SourceTypeAllSpecific})
	require.NoError(t, err)
	require.NotNil(t, res.JobID)
	assert.ElementsMatch(t, []string{"board", "broken"}, res.Sources)

	view := waitJob(t, svc, *res.JobID)
	assert.Equal(t, domain.JobKindBulk, view.Kind)
	assert.Equal(t, domain.JobStatusCompleted, view.Status, "one failing source does not fail the batch")
	assert.Equal(t, 3, view.Published)
	assert.Equal(t, 1, view.Errors)

	require.Len(t, view.Children, 2)
	statuses := make(map[string]domain.JobStatus)
	for _, child := range view.Children {
		require.NotNil(t, child.ParentID)
		assert.Equal(t, view.ID, *child.ParentID)
		statuses[child.SourceID] = child.Status
	}
	assert.Equal(t, domain.JobStatusCompleted, statuses["board"])
	assert.Equal(t, domain.JobStatusFailed, statuses["broken"])

	assert.Equal(t, 100.0, h.store.source("board").SuccessRate)
	assert.Equal(t, 80.0, h.store.source("broken").SuccessRate)
}

func TestTriggerBulkAllFailed(t *testing.T) {
	h := newHarness(t)
	h.site.down["/jobs"] = true
	h.site.down["/broken"] = true
	svc := newService(t, h, 4, true, ServiceOptions{})

	res, err := svc.Trigger(context.Background(), TriggerRequest{SourceType: SourceTypeAllSpecific})
	require.NoError(t, err)

	view := waitJob(t, svc, *res.JobID)
	assert.Equal(t, domain.JobStatusFailed, view.Status)
	require.NotNil(t, view.ErrorMessage)
	assert.Contains(t, *view.ErrorMessage, "all 2 sources failed")
}

func TestBulkPanicFailsJobs(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{})
	ctx := context.Background()
	targets := []domain.SourceConfig{h.site.source("board", "/jobs"), h.site.source("broken", "/broken")}

	crash := func(context.Context, *domain.ScrapingJob, domain.SourceConfig, domain.RunCounts) {
		panic("nil map")
	}
	bulk := domain.NewScrapingJob(domain.JobKindBulk, "", nil)
	require.NoError(t, h.store.CreateJob(ctx, bulk))
	require.NotPanics(t, func() {
		svc.guarded(bulk, func() { svc.runBulk(ctx, bulk, targets, crash, nil) })
	})

	stored := h.store.job(bulk.ID)
	require.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, *stored.ErrorMessage, "all 2 sources failed")
	children, err := h.store.ChildJobs(ctx, bulk.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, child := range children {
		assert.Equal(t, domain.JobStatusFailed, child.Status)
		require.NotNil(t, child.ErrorMessage)
		assert.Contains(t, *child.ErrorMessage, "panic: nil map")
	}

	// A panic outside any child still leaves the batch terminal.
	stop := func(domain.RunCounts) bool { panic("budget unavailable") }
	bulk = domain.NewScrapingJob(domain.JobKindBulk, "", nil)
	require.NoError(t, h.store.CreateJob(ctx, bulk))
	svc.guarded(bulk, func() { svc.runBulk(ctx, bulk, targets, crash, stop) })

	stored = h.store.job(bulk.ID)
	require.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Contains(t, *stored.ErrorMessage, "panic: budget unavailable")
}

func TestTriggerSelectsDueSources(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{FreshnessWindow: time.Hour, MinSuccessRate: 20})
	ctx := context.Background()

	_, err := h.store.RecordSourceResult(ctx, "board", true, time.Now())
	require.NoError(t, err)

	res, err := svc.Trigger(ctx, TriggerRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, res.Sources, "recently scraped source is skipped")

	res, err = svc.Trigger(ctx, TriggerRequest{ManualTrigger: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"board", "broken"}, res.Sources, "manual trigger ignores freshness")

	res, err = svc.Trigger(ctx, TriggerRequest{ManualTrigger: true, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Sources, 1)
}

func TestTriggerNothingDue(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{FreshnessWindow: time.Hour})
	ctx := context.Background()

	for _, id := range []string{"board", "broken"} {
		_, err := h.store.RecordSourceResult(ctx, id, true, time.Now())
		require.NoError(t, err)
	}

	res, err := svc.Trigger(ctx, TriggerRequest{})
	require.NoError(t, err)
	assert.Nil(t, res.JobID)
	assert.Equal(t, "No sources due for scraping", res.Message)
	assert.Equal(t, string(domain.JobStatusCompleted), res.Status)
}

func TestTriggerUnknownSource(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{})

	_, err := svc.Trigger(context.Background(), TriggerRequest{SourceID: "nope"})
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = svc.Trigger(context.Background(), TriggerRequest{Action: ActionTest, SourceID: "nope"})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestTriggerQueueFull(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 1, false, ServiceOptions{})
	ctx := context.Background()

	_, err := svc.Trigger(ctx, TriggerRequest{SourceID: "board"})
	require.NoError(t, err)

	_, err = svc.Trigger(ctx, TriggerRequest{SourceID: "broken"})
	require.ErrorIs(t, err, ErrQueueFull)

	var failed int
	h.store.mu.Lock()
	for _, job := range h.store.jobs {
		if job.Status == domain.JobStatusFailed {
			failed++
		}
	}
	h.store.mu.Unlock()
	assert.Equal(t, 1, failed, "rejected job is not left running")
}

func TestTriggerTestAction(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{SampleSize: 2})

	res, err := svc.Trigger(context.Background(), TriggerRequest{Action: ActionTest, SourceID: "board"})
	require.NoError(t, err)
	assert.Nil(t, res.JobID)
	assert.Equal(t, 3, res.Found)
	assert.Equal(t, "structured", res.Tier)
	assert.Len(t, res.Sample, 2)
	assert.Zero(t, h.store.opportunityCount())

	_, err = svc.Trigger(context.Background(), TriggerRequest{Action: ActionTest})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestTriggerPersistedGenericSource(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{})
	require.NoError(t, h.store.EnsureSource(context.Background(), domain.ScrapingSource{
		ID:          "generic",
		Name:        "Generic board",
		URL:         h.site.URL + "/generic",
		Type:        domain.SourceTypeGeneric,
		IsActive:    true,
		SuccessRate: 100,
	}))

	res, err := svc.Trigger(context.Background(), TriggerRequest{Action: ActionTest, SourceID: "generic"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Found)
	assert.Equal(t, "heuristic", res.Tier)
}

func TestTriggerUpdateDescriptionsNeedsSource(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{})

	_, err := svc.Trigger(context.Background(), TriggerRequest{Action: ActionUpdateDescriptions})
	assert.ErrorIs(t, err, ErrNoSource)

	res, err := svc.Trigger(context.Background(), TriggerRequest{Action: ActionUpdateDescriptions, UpdateAll: true})
	require.NoError(t, err)
	assert.Len(t, res.Sources, 2)
}

func TestSourcesView(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{})
	ctx := context.Background()

	_, err := h.store.RecordSourceResult(ctx, "broken", false, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.store.EnsureSource(ctx, domain.ScrapingSource{
		ID: "generic", Name: "Generic", URL: h.site.URL, Type: domain.SourceTypeGeneric, IsActive: true,
	}))

	// Re-syncing keeps mutable state.
	require.NoError(t, svc.SyncRegistry(ctx))

	views, err := svc.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, "board", views[0].ID)
	assert.True(t, views[0].HasSelectors)
	assert.True(t, views[0].Persisted)
	assert.Equal(t, "broken", views[1].ID)
	assert.Equal(t, 80.0, views[1].SuccessRate)
	assert.Equal(t, "generic", views[2].ID)
	assert.False(t, views[2].HasSelectors)
}

func TestJobNotFound(t *testing.T) {
	h := newHarness(t)
	svc := newService(t, h, 4, false, ServiceOptions{})

	_, err := svc.Job(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
