package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTemplate(t *testing.T, s *Store, maxConsumers int) *entity.TimeSlotTemplate {
	t.Helper()
	ctx := context.Background()

	st := &entity.SessionType{Name: "yoga", MaxConsumers: maxConsumers, DefaultDurationMinutes: 60}
	require.NoError(t, s.Templates().CreateSessionType(ctx, st))

	tpl := &entity.TimeSlotTemplate{RecurrenceExpr: "0 18 * * *", SessionTypeID: st.ID}
	require.NoError(t, s.Templates().CreateTemplate(ctx, tpl))
	return tpl
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	s := NewStore()
	tpl := seedTemplate(t, s, 5)
	start := time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := s.Allocations().InsertIfAbsent(context.Background(), &entity.Allocation{
				TemplateID: tpl.ID,
				StartTime:  start.Add(time.Duration(i) * time.Millisecond), // same second
				EndTime:    start.Add(time.Hour),
				Status:     entity.AllocationStatusAvailable,
			})
			if assert.NoError(t, err) {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	all, err := s.Allocations().ListByTemplate(context.Background(), tpl.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, 5, all[0].MaxConsumers)
}

func TestTryReserveSeatsVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tpl := seedTemplate(t, s, 2)

	a, err := s.Allocations().InsertIfAbsent(ctx, &entity.Allocation{
		TemplateID: tpl.ID,
		StartTime:  time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC),
		Status:     entity.AllocationStatusAvailable,
	})
	require.NoError(t, err)

	updated, err := s.Allocations().TryReserveSeats(ctx, a.ID, a.Version, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Occupancy)
	assert.Equal(t, a.Version+1, updated.Version)

	// stale version
	_, err = s.Allocations().TryReserveSeats(ctx, a.ID, a.Version, 1)
	assert.ErrorIs(t, err, entity.ErrConcurrencyConflict)

	// over capacity
	_, err = s.Allocations().TryReserveSeats(ctx, a.ID, updated.Version, 2)
	assert.ErrorIs(t, err, entity.ErrConcurrencyConflict)

	released, err := s.Allocations().ReleaseSeats(ctx, a.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, released.Occupancy)
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := &entity.Bundle{ConsumerID: "c1", Status: entity.BundleStatusActive, Items: []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: 1}}}
	require.NoError(t, s.Bundles().Create(ctx, b))

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx database.Repositories) error {
		require.NoError(t, tx.Ledger().Append(ctx, &entity.BundleUsageEvent{BundleID: b.ID, Type: entity.UsageEventUse, Quantity: 1}))
		require.NoError(t, tx.Bundles().SetStatus(ctx, b.ID, entity.BundleStatusExpended))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	events, err := s.Ledger().ListByBundle(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, events)

	got, err := s.Bundles().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BundleStatusActive, got.Status)
}

func TestRunInTxHonoursDeadline(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())

	b := &entity.Bundle{ConsumerID: "c1", Items: []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: 1}}}
	err := s.RunInTx(ctx, func(tx database.Repositories) error {
		cancel()
		return tx.Bundles().Create(ctx, b)
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Bundles().GetByID(context.Background(), b.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestReservationDuplicateHolder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first := &entity.Reservation{AllocationID: "a1", BundleID: "b1", OnBehalfOfName: "Ann", Status: entity.ReservationStatusConfirmed}
	require.NoError(t, s.Reservations().Create(ctx, first))

	err := s.Reservations().Create(ctx, &entity.Reservation{AllocationID: "a1", BundleID: "b1", OnBehalfOfName: " ann ", Status: entity.ReservationStatusPending})
	assert.ErrorIs(t, err, entity.ErrDuplicateBooking)

	require.NoError(t, s.Reservations().UpdateStatus(ctx, first.ID, entity.ReservationStatusConfirmed, entity.ReservationStatusCancelled, "sick"))
	assert.NoError(t, s.Reservations().Create(ctx, &entity.Reservation{AllocationID: "a1", BundleID: "b1", OnBehalfOfName: "Ann", Status: entity.ReservationStatusConfirmed}))

	err = s.Reservations().UpdateStatus(ctx, first.ID, entity.ReservationStatusConfirmed, entity.ReservationStatusCancelled, "")
	assert.ErrorIs(t, err, entity.ErrConcurrencyConflict)
}

func TestLedgerOrderingAndSeq(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := &entity.Bundle{ConsumerID: "c1", Items: []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: 2}}}
	require.NoError(t, s.Bundles().Create(ctx, b))

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, typ := range []entity.UsageEventType{entity.UsageEventUse, entity.UsageEventUse, entity.UsageEventRefund} {
		require.NoError(t, s.Ledger().Append(ctx, &entity.BundleUsageEvent{BundleID: b.ID, Type: typ, Quantity: 1, CreatedAt: at}))
	}

	events, err := s.Ledger().ListByBundle(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Less(t, events[0].Seq, events[1].Seq)
	assert.Less(t, events[1].Seq, events[2].Seq)
	assert.Equal(t, 1, entity.RemainingUses(b.GrantedSessions(), events))

	err = s.Ledger().Append(ctx, &entity.BundleUsageEvent{BundleID: "missing", Type: entity.UsageEventUse, Quantity: 1})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestListExpirablePagesByCursor(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)

	// two share a validity end, so the id breaks the tie
	for _, until := range []time.Time{now.Add(-3 * time.Hour), now.Add(-time.Hour), now.Add(-time.Hour), now.Add(-2 * time.Hour), now.Add(time.Hour)} {
		require.NoError(t, s.Bundles().Create(ctx, &entity.Bundle{
			ConsumerID: "c1",
			Status:     entity.BundleStatusActive,
			ValidFrom:  now.AddDate(0, -1, 0),
			ValidUntil: until,
			Items:      []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: 1}},
		}))
	}

	var (
		seen   []*entity.Bundle
		cursor entity.ExpiryCursor
	)
	for page := 0; page < 5; page++ {
		bundles, err := s.Bundles().ListExpirable(ctx, now, cursor, 2)
		require.NoError(t, err)
		seen = append(seen, bundles...)
		if len(bundles) < 2 {
			break
		}
		cursor = entity.CursorAt(bundles[len(bundles)-1])
	}

	require.Len(t, seen, 4)
	for i := 1; i < len(seen); i++ {
		prev := entity.CursorAt(seen[i-1])
		assert.True(t, prev.Precedes(seen[i]), "bundle %d out of order", i)
	}
}
