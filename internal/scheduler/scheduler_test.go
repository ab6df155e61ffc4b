package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextWakeAlignsToBoundary(t *testing.T) {
	s := NewAlignedScheduler(context.Background(), time.Minute, 0)

	now := time.Date(2026, 3, 5, 10, 42, 17, 0, time.UTC)
	wakeAt, wait := s.nextWake(now)

	assert.Equal(t, time.Date(2026, 3, 5, 10, 43, 0, 0, time.UTC), wakeAt)
	assert.Equal(t, 43*time.Second, wait)
}

func TestNextWakeAppliesOffset(t *testing.T) {
	s := NewAlignedScheduler(context.Background(), time.Hour, 5*time.Second)

	now := time.Date(2026, 3, 5, 10, 59, 58, 0, time.UTC)
	wakeAt, wait := s.nextWake(now)

	assert.Equal(t, time.Date(2026, 3, 5, 11, 0, 5, 0, time.UTC), wakeAt)
	assert.Equal(t, 7*time.Second, wait)
}

func TestStartRunsTaskOnAlignedWakeups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewAlignedScheduler(ctx, 10*time.Millisecond, 0)

	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		s.Start(func() {
			if runs.Add(1) >= 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}

func TestStartRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	s := NewAlignedScheduler(ctx, time.Hour, 0)
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	go s.Start(func() {
		select {
		case ran <- struct{}{}:
		default:
		}
		cancel()
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate run never happened")
	}
}

func TestStartRejectsInvalidInterval(t *testing.T) {
	s := NewAlignedScheduler(context.Background(), 0, 0)
	s.Start(func() { t.Fatal("task must not run with zero interval") })
}
