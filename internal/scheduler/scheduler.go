package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked at every scheduled firing.
type TickFunc func(ctx context.Context, fireAt time.Time) error

// Schedule computes firing times for a job.
type Schedule interface {
	// Next returns the first firing time strictly after now.
	Next(now time.Time) time.Time
}

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	StartupDelay time.Duration
	// RunOnStart fires the job once after the startup delay, before the
	// first scheduled firing.
	RunOnStart bool
}

// Scheduler drives execution of a single recurring job. Overlapping runs of
// the same job are skipped via an in-flight guard.
type Scheduler struct {
	schedule Schedule
	opts     Options
	logger   zerolog.Logger
	inFlight atomic.Bool
}

// New constructs a Scheduler instance.
func New(schedule Schedule, opts Options, logger zerolog.Logger) *Scheduler {
	if schedule == nil {
		panic("scheduler requires a schedule")
	}
	return &Scheduler{
		schedule: schedule,
		opts:     opts,
		logger:   logger.With().Str("component", "scheduler").Str("job", opts.Name).Logger(),
	}
}

// Run blocks, invoking the tick function at each scheduled firing until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleepCtx(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.RunOnStart {
		s.fire(ctx, tick, time.Now().UTC())
	}

	for {
		next := s.schedule.Next(time.Now())
		delay := time.Until(next)
		if delay < 0 {
			delay = 0
		}

		s.logger.Debug().Time("next_fire", next).Msg("waiting for next firing")
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}

		s.fire(ctx, tick, next)
	}
}

// fire executes one tick unless the previous one is still in flight.
func (s *Scheduler) fire(ctx context.Context, tick TickFunc, at time.Time) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn().Time("fire_at", at).Msg("previous run still in flight; skipping")
		return
	}
	defer s.inFlight.Store(false)

	s.logger.Info().Time("fire_at", at).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("fire_at", at).Msg("tick execution failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
