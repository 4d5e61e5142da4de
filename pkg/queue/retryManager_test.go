package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBackoff тестирует экспоненциальную задержку с ограничением сверху
func TestBackoff(t *testing.T) {
	rm := NewRetryManager(5, 100*time.Millisecond, time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: time.Second},
		{attempt: 40, want: time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, rm.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}

	assert.Equal(t, 1600*time.Millisecond, NewRetryManager(1, 100*time.Millisecond, 0).Backoff(10))
}

func TestShouldRetry(t *testing.T) {
	rm := NewRetryManager(3, time.Millisecond, 10*time.Millisecond)
	failure := errors.New("boom")

	tests := []struct {
		name      string
		attempts  int
		err       error
		wantRetry bool
	}{
		{name: "first failure", attempts: 1, err: failure, wantRetry: true},
		{name: "last retry", attempts: 3, err: failure, wantRetry: true},
		{name: "budget spent", attempts: 4, err: failure},
		{name: "permanent", attempts: 1, err: Permanent(failure)},
		{name: "no error", attempts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, delay := rm.ShouldRetry(&Task{Attempts: tt.attempts, MaxRetries: 3}, tt.err)
			assert.Equal(t, tt.wantRetry, retry)
			if tt.wantRetry {
				assert.Positive(t, delay)
			}
		})
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")

	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))
}
