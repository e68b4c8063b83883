// Package scheduler runs the ingestion cycle on a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is one unit of scheduled work.
type Job interface {
	RunOnce(ctx context.Context) error
}

// Scheduler triggers a Job immediately and then every interval. A run that is
// still in progress when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       Job
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
}

// New creates a Scheduler for job.
func New(job Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       job,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the job and returns without waiting for the first run.
// Every run's context derives from ctx and is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	jobCtx, cancel := context.WithCancel(ctx)

	_, err := s.scheduler.Every(s.interval).SingletonMode().StartImmediately().Do(func() {
		s.run(jobCtx)
	})
	if err != nil {
		cancel()
		return err
	}

	s.cancel = cancel
	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop cancels the running job, if any, and stops future runs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled cycle failed", "error", err)
	}
}
