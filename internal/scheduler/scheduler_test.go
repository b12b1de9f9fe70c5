package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsDueJobs(t *testing.T) {
	s := New(10*time.Millisecond, nil, nil)

	var calls int32
	require.NoError(t, s.AddJob("every-minute", "* * * * *", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	// override nextRun to fire immediately
	s.mu.Lock()
	s.jobs["every-minute"].nextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 1
	}, 500*time.Millisecond, 10*time.Millisecond)
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	s := New(50*time.Millisecond, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(time.Second))
}

func TestSchedulerStopWithoutStartIsNoop(t *testing.T) {
	s := New(50*time.Millisecond, nil, nil)
	assert.NoError(t, s.Stop(time.Second))
}

func TestSchedulerRejectsInvalidCronExpression(t *testing.T) {
	s := New(time.Second, nil, nil)
	err := s.AddJob("bad", "not a cron expr", func(context.Context) error { return nil })
	assert.Error(t, err)
}
