// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aidanjnn/sketchy/internal/platform/logger"
)

const jobTimeout = 10 * time.Minute

type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

type Scheduler struct {
	cron      *cron.Cron
	purger    Purger
	retention time.Duration
	log       *logger.Logger
}

func NewScheduler(purger Purger, retention time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		cron:      cron.New(),
		purger:    purger,
		retention: retention,
		log:       log.With("component", "scheduler"),
	}
}

// Start registers the purge job with a standard five-field schedule and
// starts the scheduler.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		_, _ = s.RunPurge(ctx)
	}); err != nil {
		return fmt.Errorf("schedule purge %q: %w", schedule, err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "purge_schedule", schedule, "retention", s.retention.String())
	return nil
}

// RunPurge removes projects soft-deleted longer than the retention ago.
func (s *Scheduler) RunPurge(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.purger.Purge(ctx, s.retention)
	if err != nil {
		s.log.Error("purge failed", "error", err)
		return 0, err
	}
	s.log.Info("purge completed", "projects", n, "duration_ms", time.Since(start).Milliseconds())
	return n, nil
}

// Stop stops scheduling and waits for a running job.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
