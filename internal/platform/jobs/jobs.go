// Package jobs runs periodic housekeeping: expired OTP codes, stale token
// revocations and idle rate limiter entries.
package jobs

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Sweeper drops expired entries and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// SweepFunc adapts a plain function to Sweeper.
type SweepFunc func() int

func (f SweepFunc) Sweep() int { return f() }

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	cron   *gocron.Scheduler
	logger zerolog.Logger
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	return &Scheduler{cron: cron, logger: logger}
}

// AddSweep runs sw every interval. A sweep still running when the next one
// is due is not started twice.
func (s *Scheduler) AddSweep(name string, every time.Duration, sw Sweeper) error {
	_, err := s.cron.Every(every).Do(func() {
		RunSweep(name, sw, s.logger)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int { return s.cron.Len() }

func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.logger.Info().Int("jobs", s.cron.Len()).Msg("periodic jobs started")
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunSweep executes one sweep, logging the result and containing panics.
func RunSweep(name string, sw Sweeper, logger zerolog.Logger) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("job", name).Str("panic", fmt.Sprintf("%v", r)).Msg("sweep panicked")
			removed = 0
		}
	}()
	removed = sw.Sweep()
	if removed > 0 {
		logger.Debug().Str("job", name).Int("removed", removed).Msg("sweep finished")
	}
	return removed
}
