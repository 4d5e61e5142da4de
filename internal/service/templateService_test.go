package service

import (
	"context"
	"testing"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTemplateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	tests := []struct {
		name string
		req  *CreateTemplateRequest
		want error
	}{
		{name: "bad cron", req: &CreateTemplateRequest{RecurrenceExpr: "every day", SessionTypeID: f.template.SessionTypeID}, want: entity.ErrInvalidInput},
		{name: "bad zone", req: &CreateTemplateRequest{RecurrenceExpr: "0 9 * * *", TimeZone: "Mars/Olympus", SessionTypeID: f.template.SessionTypeID}, want: entity.ErrInvalidInput},
		{name: "unknown session type", req: &CreateTemplateRequest{RecurrenceExpr: "0 9 * * *", SessionTypeID: "nope"}, want: entity.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.templates.CreateTemplate(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.templates.CreateSessionType(ctx, &CreateSessionTypeRequest{Name: "yoga", MaxConsumers: 0, DefaultDurationMinutes: 60})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestExpandSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	from := f.start.Add(-time.Hour)
	slots, err := f.templates.ExpandSlots(ctx, f.template.ID, from, from.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.True(t, slots[0].StartTime.Equal(f.start))
	assert.Equal(t, 50*time.Minute, slots[0].EndTime.Sub(slots[0].StartTime))

	_, err = f.templates.ExpandSlots(ctx, "missing", from, from.Add(time.Hour))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestGetOrCreateOutsideValidity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	bounded, err := f.templates.CreateTemplate(ctx, &CreateTemplateRequest{
		RecurrenceExpr: "0 18 * * *",
		ValidFromYear:  2030,
		ValidToYear:    2030,
		SessionTypeID:  f.template.SessionTypeID,
	})
	require.NoError(t, err)

	_, err = f.allocations.GetOrCreate(ctx, bounded.ID, f.start)
	require.NoError(t, err)
	_, err = f.allocations.GetOrCreate(ctx, bounded.ID, f.start.AddDate(1, 0, 0))
	assert.ErrorIs(t, err, entity.ErrNotAvailable)
	_, err = f.allocations.GetOrCreate(ctx, "missing", f.start)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
