package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadJobs(t *testing.T) {
	s := NewScheduler()
	assert.Error(t, s.Add(Job{Name: "no-run", Interval: time.Second}))
	assert.Error(t, s.Add(Job{Name: "no-interval", Run: func(context.Context) error { return nil }}))
}

func TestStartRunsJobsUntilCancelled(t *testing.T) {
	s := NewScheduler()

	var ok, failing atomic.Int32
	require.NoError(t, s.Add(Job{Name: "ok", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		ok.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		failing.Add(1)
		return errors.New("boom")
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return ok.Load() >= 2 && failing.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
