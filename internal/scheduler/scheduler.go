package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"forumwatch-go/internal/model"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) model.CycleReport
}

// Scheduler runs cycles back to back: a cycle, then a sleep until the
// schedule's next activation, and so on until ctx is cancelled.
type Scheduler struct {
	schedule cron.Schedule
	runner   CycleRunner
	cooldown time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func New(schedule cron.Schedule, runner CycleRunner, cooldown time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		runner:   runner,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// ParseSchedule returns the cron schedule for spec, or a constant delay of
// interval when spec is empty.
func ParseSchedule(spec string, interval time.Duration) (cron.Schedule, error) {
	if spec == "" {
		return cron.Every(interval), nil
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return schedule, nil
}

// Run blocks until ctx is cancelled. It never returns an error for a failed cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().Msg("starting the watcher")
	for {
		wait := s.cooldown
		if err := s.runOnce(ctx); err != nil {
			s.logger.Error().Err(err).Dur("cooldown", s.cooldown).Msg("cycle aborted; cooling down")
		} else {
			now := s.now()
			wait = s.schedule.Next(now).Sub(now)
		}

		if ctx.Err() != nil {
			s.logger.Info().Msg("watcher stopped")
			return nil
		}

		s.logger.Info().Dur("wait", wait).Msg("waiting before next check")
		if !sleep(ctx, wait) {
			s.logger.Info().Msg("watcher stopped")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error().Str("stack", string(debug.Stack())).Msg("recovered from panic in cycle")
		}
	}()
	s.runner.RunCycle(ctx)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
