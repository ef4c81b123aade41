// Package scheduler periodically triggers a scrape of the sources that are
// due.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/pipeline"
)

// Triggerer starts scrape runs
type Triggerer interface {
	Trigger(ctx context.Context, req pipeline.TriggerRequest) (*pipeline.TriggerResult, error)
}

// Scheduler wraps robfig/cron and fires the due-sources trigger
type Scheduler struct {
	cron    *cron.Cron
	trigger Triggerer
	spec    string // cron spec, e.g. "@every 6h"
	logger  *zap.Logger
}

// New creates a scheduler firing on spec
func New(trigger Triggerer, spec string, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		trigger: trigger,
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the job and starts the cron loop. One run is also
// triggered right away so a fresh deployment does not wait for the first
// tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunDue(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("spec", s.spec))

	go s.RunDue(ctx)
	return nil
}

// Stop halts the cron loop and waits for a running trigger to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunDue queues a run over the sources currently due
func (s *Scheduler) RunDue(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.trigger.Trigger(ctx, pipeline.TriggerRequest{})
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		s.logger.Warn("Scrape queue full, skipping scheduled run")
	case err != nil:
		s.logger.Error("Scheduled run failed", zap.Error(err))
	case res.JobID == nil:
		s.logger.Debug(res.Message)
	default:
		s.logger.Info("Scheduled run queued",
			zap.String("job_id", res.JobID.String()),
			zap.Strings("sources", res.Sources),
		)
	}
}

// cronLogger routes cron's own logging through zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
