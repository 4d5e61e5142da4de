package entity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"wrapped not found", fmt.Errorf("load: %w", ErrAllocationNotFound), KindNotFound},
		{"capacity", ErrCapacityExceeded, KindCapacityExceeded},
		{"exhausted retries keep capacity kind", fmt.Errorf("%w: gave up (%v)", ErrCapacityExceeded, ErrConcurrencyConflict), KindCapacityExceeded},
		{"invalid input helper", InvalidInput("bad %s", "thing"), KindInvalidInput},
		{"deadline", fmt.Errorf("tx: %w", context.DeadlineExceeded), KindTimeout},
		{"delivery exhausted", ErrDeliveryExhausted, KindDeliveryExhausted},
		{"unknown", errors.New("pq: connection refused"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
