/**
 * @description
 * Cron scheduler for the portal's background jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the outbox flush on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *OutboxDispatcher
	schedule   string
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. Overlapping runs are skipped rather than queued.
func NewScheduler(dispatcher *OutboxDispatcher, schedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:       c,
		dispatcher: dispatcher,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.dispatcher.Flush); err != nil {
		s.logger.Error("failed to schedule outbox flush job", "error", err, "schedule", s.schedule)
		return err
	}
	s.logger.Info("scheduled outbox flush job", "schedule", s.schedule)

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
