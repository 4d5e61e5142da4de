package queue

import (
	"time"
)

// RetryManager manages retry logic for failed tasks
type RetryManager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryManager creates a new RetryManager. maxRetries is the default for tasks
// that do not carry their own limit; maxDelay <= 0 means 16x baseDelay.
func NewRetryManager(maxRetries int, baseDelay, maxDelay time.Duration) *RetryManager {
	if maxDelay <= 0 {
		maxDelay = baseDelay * 16
	}
	return &RetryManager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// MaxRetries is the default retry budget.
func (r *RetryManager) MaxRetries() int {
	return r.maxRetries
}

// ShouldRetry determines if a task should be retried and returns the delay.
// task.Attempts counts the attempt that just failed, so a task gets at most
// MaxRetries+1 attempts in total.
func (r *RetryManager) ShouldRetry(task *Task, err error) (bool, time.Duration) {
	if err == nil || IsPermanent(err) {
		return false, 0
	}
	if task.Attempts > task.MaxRetries {
		return false, 0
	}
	return true, r.Backoff(task.Attempts)
}

// Backoff returns base * 2^(attempt-1), capped at the maximum delay.
func (r *RetryManager) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return minDuration(r.baseDelay, r.maxDelay)
	}

	backoff := r.baseDelay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= r.maxDelay || backoff <= 0 {
			return r.maxDelay
		}
	}
	return backoff
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
