package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/gridmarket/core/logger"
)

// Job is run once per interval with the interval start time.
type Job func(ctx context.Context, start time.Time) error

// Scheduler invokes a Job on every interval boundary.
type Scheduler struct {
	interval time.Duration
	tick     time.Duration
	clock    Clock
	job      Job
	log      logger.Logger

	runs   int64
	missed int64
}

// New returns a scheduler. interval must be a positive multiple of tick.
func New(interval, tick time.Duration, clock Clock, job Job, log logger.Logger) (*Scheduler, error) {
	if tick <= 0 || interval <= 0 || interval%tick != 0 {
		return nil, fmt.Errorf("scheduler: interval %s is not a positive multiple of tick %s", interval, tick)
	}
	if clock == nil || job == nil || log == nil {
		return nil, errors.New("scheduler: nil parameter provided to New")
	}
	return &Scheduler{interval: interval, tick: tick, clock: clock, job: job, log: log}, nil
}

// Ticks returns the number of simulation ticks per interval.
func (s *Scheduler) Ticks() int64 { return int64(s.interval / s.tick) }

// Runs returns the number of completed jobs.
func (s *Scheduler) Runs() int64 { return s.runs }

// Missed returns the number of boundaries skipped because a job overran.
func (s *Scheduler) Missed() int64 { return s.missed }

// Next returns the first interval boundary at or after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	b := t.Truncate(s.interval)
	if b.Before(t) {
		b = b.Add(s.interval)
	}
	return b
}

// Run triggers the job on every boundary until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.run(ctx, -1)
}

// RunN triggers the job on the next n boundaries and returns.
func (s *Scheduler) RunN(ctx context.Context, n int) error {
	return s.run(ctx, n)
}

func (s *Scheduler) run(ctx context.Context, n int) error {
	next := s.Next(s.clock.Now())
	for i := 0; n < 0 || i < n; i++ {
		if err := s.clock.WaitUntil(ctx, next); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := s.job(ctx, next); err != nil {
			s.log.Errorf("interval %s: %v", next.Format(time.RFC3339), err)
		}
		s.runs++
		next = next.Add(s.interval)
		if now := s.clock.Now(); now.After(next) {
			skip := s.Next(now)
			missed := int64(skip.Sub(next) / s.interval)
			s.missed += missed
			s.log.Warnf("job overran, skipping %d interval(s) up to %s", missed, skip.Format(time.RFC3339))
			next = skip
		}
	}
	return nil
}
