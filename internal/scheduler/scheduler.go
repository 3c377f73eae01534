// Package scheduler runs the background deck sync on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Job is the periodic work, typically a deck sync.
type Job func(ctx context.Context) error

// Scheduler manages scheduled tasks for the application.
type Scheduler struct {
	scheduler *gocron.Scheduler
	log       *slog.Logger
	cancel    context.CancelFunc
}

// New schedules job every interval. The first run happens on Start.
func New(ctx context.Context, interval time.Duration, job Job, log *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		log:       log.With("component", "scheduler"),
		cancel:    cancel,
	}
	// A slow run must not pile up behind itself.
	s.scheduler.SingletonModeAll()

	_, err := s.scheduler.Every(interval).Do(func() {
		started := time.Now()
		if err := job(ctx); err != nil {
			s.log.Error("scheduled job failed", "error", err)
			return
		}
		s.log.Debug("scheduled job finished", "took", time.Since(started))
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to schedule job: %w", err)
	}
	return s, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop terminates scheduling and cancels a run in progress.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
