// Package scheduler drives the periodic price refresh.
//
// The scheduler owns a single background goroutine that triggers a full
// refresh run immediately on start and then once per interval. Runs never
// overlap: the next tick waits for the previous run to return. Shutdown is
// cooperative via context cancellation.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-deal-backend/internal/services"
)

// Runner is the part of the refresh pipeline the scheduler needs.
type Runner interface {
	Run(ctx context.Context) (*services.RefreshReport, error)
}

// Scheduler triggers refresh runs on a fixed interval.
type Scheduler struct {
	// Runner executes one refresh pass over all refreshable deals.
	Runner Runner

	// Interval is the time between runs. Values <= 0 default to 6h.
	Interval time.Duration
}

// New constructs a Scheduler.
func New(r Runner, interval time.Duration) *Scheduler {
	return &Scheduler{Runner: r, Interval: interval}
}

// Start blocks until ctx is cancelled, running the pipeline immediately and
// then on every tick. Callers run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.interval()
	log.Info().Dur("interval", interval).Msg("refresh scheduler started")

	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("refresh scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes a single refresh pass. Errors are logged, not returned:
// a broken run must not kill the loop.
func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Runner.Run(ctx); err != nil {
		log.Error().Err(err).Msg("scheduled refresh run failed")
	}
}

func (s *Scheduler) interval() time.Duration {
	if s.Interval <= 0 {
		return 6 * time.Hour
	}
	return s.Interval
}
