package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/metrics"
)

// Task is a unit of background work
type Task struct {
	Name string
	Run  func(ctx context.Context)
	// Drop, if set, is called instead of Run when the queue shuts down
	// before the task starts.
	Drop func()
}

// Queue runs tasks one at a time on a single worker, so sources are never
// scraped in parallel by one instance.
type Queue struct {
	tasks   chan Task
	metrics *metrics.Metrics
	logger  *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue holding up to size pending tasks
func NewQueue(size int, m *metrics.Metrics, logger *zap.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		tasks:   make(chan Task, size),
		metrics: m,
		logger:  logger,
	}
}

// Start launches the worker. Tasks receive a context derived from ctx that
// is cancelled by Stop.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.work(ctx)
}

// Submit enqueues t without blocking. It returns ErrQueueFull when the
// queue is at capacity or stopped.
func (q *Queue) Submit(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueFull
	}

	select {
	case q.tasks <- t:
		q.metrics.SetQueueDepth(len(q.tasks))
		q.logger.Debug("Task queued", zap.String("task", t.Name), zap.Int("depth", len(q.tasks)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of waiting tasks
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Stop refuses new tasks, cancels the running one and waits for the worker
// to exit. Tasks still queued are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for t := range q.tasks {
		q.metrics.SetQueueDepth(len(q.tasks))
		if ctx.Err() != nil {
			q.logger.Warn("Dropping task after shutdown", zap.String("task", t.Name))
			if t.Drop != nil {
				t.Drop()
			}
			continue
		}
		q.run(ctx, t)
	}
}

func (q *Queue) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Task panicked", zap.String("task", t.Name), zap.Any("panic", r))
		}
	}()
	q.logger.Debug("Task started", zap.String("task", t.Name))
	t.Run(ctx)
}
