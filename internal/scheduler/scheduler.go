// Package scheduler triggers collection runs on a cron schedule.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/projektkollen/collector/internal/config"
	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/tasks"
)

// Starter defines the interface for starting collection runs.
type Starter interface {
	StartCollection(filters domain.Filters, regionIDs []string) (*domain.Task, error)
}

// Scheduler runs collections on the configured cron schedule. Triggers
// that overlap a run still in flight are skipped, never queued.
type Scheduler struct {
	log     logger.Logger
	cfg     config.SchedulerConfig
	starter Starter
	cron    *cron.Cron

	// now is swapped in tests.
	now func() time.Time
}

// New creates a scheduler around the given run starter.
func New(cfg config.SchedulerConfig, starter Starter, log logger.Logger) *Scheduler {
	// Standard 5-field cron format (minute hour day month weekday).
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	return &Scheduler{
		log:     log,
		cfg:     cfg,
		starter: starter,
		cron:    c,
		now:     time.Now,
	}
}

// Start validates the schedule and starts the cron loop. It is a no-op
// when the scheduler is disabled in configuration.
func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()

	s.log.Info("scheduler started",
		logger.String("schedule", s.cfg.Schedule),
		logger.Duration("lookback", s.cfg.Lookback),
		logger.Strings("regions", s.cfg.Regions))
	return nil
}

// Stop stops the cron loop and waits for an in-flight trigger to return.
// The collection run itself keeps going in the background.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// runScheduled starts one collection run bounded by the lookback window.
// Since records are upserted by case number, re-collecting an overlap
// with the previous run is harmless.
func (s *Scheduler) runScheduled() {
	filters := domain.Filters{}
	if s.cfg.Lookback > 0 {
		filters.FromDate = s.now().Add(-s.cfg.Lookback)
	}

	task, err := s.starter.StartCollection(filters, s.cfg.Regions)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskAlreadyRunning) {
			s.log.Warn("scheduled run skipped, previous run still active")
			return
		}
		s.log.Error("scheduled run failed to start", logger.Error(err))
		return
	}

	s.log.Info("scheduled run started",
		logger.String("task_id", task.ID),
		logger.Time("from_date", filters.FromDate))
}
