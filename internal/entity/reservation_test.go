package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservationTransitions(t *testing.T) {
	tests := []struct {
		from ReservationStatus
		to   ReservationStatus
		ok   bool
	}{
		{ReservationStatusPending, ReservationStatusConfirmed, true},
		{ReservationStatusPending, ReservationStatusCancelled, true},
		{ReservationStatusConfirmed, ReservationStatusValidated, true},
		{ReservationStatusConfirmed, ReservationStatusCancelled, true},
		{ReservationStatusPending, ReservationStatusValidated, false},
		{ReservationStatusValidated, ReservationStatusCancelled, false},
		{ReservationStatusCancelled, ReservationStatusConfirmed, false},
		{ReservationStatusCancelled, ReservationStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestHolder(t *testing.T) {
	assert.Error(t, Holder{}.Validate())
	assert.Error(t, Holder{ConsumerID: "c1", OnBehalfOfName: "Ann"}.Validate())
	assert.NoError(t, Holder{ConsumerID: "c1"}.Validate())
	assert.NoError(t, Holder{OnBehalfOfName: "Ann"}.Validate())

	assert.Equal(t, Holder{OnBehalfOfName: " Ann Lee "}.Key(), Holder{OnBehalfOfName: "ann lee"}.Key())
	assert.NotEqual(t, Holder{ConsumerID: "ann"}.Key(), Holder{OnBehalfOfName: "ann"}.Key())
}

func TestReservationIsActive(t *testing.T) {
	assert.True(t, ReservationStatusPending.IsActive())
	assert.True(t, ReservationStatusValidated.IsActive())
	assert.False(t, ReservationStatusCancelled.IsActive())
}
