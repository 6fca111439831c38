package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/stays-bookings/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper runs SweepOnce on a cron schedule so stale requests and finished
// stays are settled even when nobody touches them.
type Sweeper struct {
	svc      BookingService
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
}

func NewSweeper(svc BookingService, schedule string, loc *time.Location) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{
		svc:      svc,
		schedule: schedule,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Run schedules the sweep and blocks until ctx is cancelled, then waits for a
// sweep in progress to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	logger.Info("Booking sweeper started", "schedule", s.schedule)
	s.cron.Start()

	<-ctx.Done()
	logger.Info("Booking sweeper shutdown signal received")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Sweeper) sweep(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
	defer cancel()

	if _, err := s.svc.SweepOnce(ctx); err != nil {
		logger.ErrorContext(ctx, "Booking sweep failed", "error", err)
	}
}
