package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingService struct {
	BookingService
	sweeps atomic.Int32
}

func (c *countingService) SweepOnce(context.Context) (SweepResult, error) {
	c.sweeps.Add(1)
	return SweepResult{}, nil
}

func TestSweeperRunsOnScheduleUntilCancelled(t *testing.T) {
	svc := &countingService{}
	s := NewSweeper(svc, "@every 1s", time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return svc.sweeps.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	s := NewSweeper(&countingService{}, "every now and then", time.UTC)
	err := s.Run(context.Background())
	assert.Error(t, err)
}
