package service

import (
	"context"
	"testing"

	"github.com/ds124wfegd/studio-booking/internal/database/memory"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWritesRetryCommitConflicts проверяет, что каждая пишущая операция повторяет
// транзакцию после сбоя сериализации и не отдает наружу текст драйвера
func TestWritesRetryCommitConflicts(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture) func(ctx context.Context) error
		check   func(t *testing.T, f *fixture, applied bool)
	}{
		{
			name: "cancel allocation",
			prepare: func(t *testing.T, f *fixture) func(ctx context.Context) error {
				b := f.bundle(t, "c1", 1)
				res, err := f.reserve(context.Background(), b.ID, entity.Holder{ConsumerID: "c1"})
				require.NoError(t, err)
				return func(ctx context.Context) error {
					_, err := f.allocations.CancelAllocation(ctx, res.AllocationID, "studio closed")
					return err
				}
			},
			check: func(t *testing.T, f *fixture, applied bool) {
				a, err := f.allocations.GetOrCreate(context.Background(), f.template.ID, f.start)
				require.NoError(t, err)
				if applied {
					assert.Equal(t, entity.AllocationStatusCancelled, a.Status)
					assert.Zero(t, a.Occupancy)
				} else {
					assert.Equal(t, entity.AllocationStatusAvailable, a.Status)
					assert.Equal(t, 1, a.Occupancy)
				}
			},
		},
		{
			name: "set allocation status",
			prepare: func(t *testing.T, f *fixture) func(ctx context.Context) error {
				a, err := f.allocations.GetOrCreate(context.Background(), f.template.ID, f.start)
				require.NoError(t, err)
				return func(ctx context.Context) error {
					_, err := f.allocations.SetStatus(ctx, a.ID, entity.AllocationStatusUnavailable)
					return err
				}
			},
			check: func(t *testing.T, f *fixture, applied bool) {
				a, err := f.allocations.GetOrCreate(context.Background(), f.template.ID, f.start)
				require.NoError(t, err)
				want := entity.AllocationStatusAvailable
				if applied {
					want = entity.AllocationStatusUnavailable
				}
				assert.Equal(t, want, a.Status)
			},
		},
		{
			name: "expire bundle",
			prepare: func(t *testing.T, f *fixture) func(ctx context.Context) error {
				b := f.bundle(t, "c1", 3)
				return func(ctx context.Context) error {
					_, err := f.bundles.ExpireBundle(ctx, b.ID)
					return err
				}
			},
			check: checkOnlyBundle(entity.BundleStatusExpired),
		},
		{
			name: "cancel bundle",
			prepare: func(t *testing.T, f *fixture) func(ctx context.Context) error {
				b := f.bundle(t, "c1", 3)
				return func(ctx context.Context) error {
					_, err := f.bundles.CancelBundle(ctx, b.ID)
					return err
				}
			},
			check: checkOnlyBundle(entity.BundleStatusCancelled),
		},
		{
			name: "append ledger event",
			prepare: func(t *testing.T, f *fixture) func(ctx context.Context) error {
				b := f.bundle(t, "c1", 3)
				return func(ctx context.Context) error {
					_, err := f.ledger.AppendEvent(ctx, b.ID, "", entity.UsageEventUse, 1)
					return err
				}
			},
			check: func(t *testing.T, f *fixture, applied bool) {
				events, err := f.store.Ledger().ListByBundle(context.Background(), onlyBundleID(t, f))
				require.NoError(t, err)
				if applied {
					assert.Len(t, events, 1)
				} else {
					assert.Empty(t, events)
				}
			},
		},
		{
			name: "cancel reservation",
			prepare: func(t *testing.T, f *fixture) func(ctx context.Context) error {
				b := f.bundle(t, "c1", 1)
				res, err := f.reserve(context.Background(), b.ID, entity.Holder{ConsumerID: "c1"})
				require.NoError(t, err)
				return func(ctx context.Context) error {
					_, err := f.reservations.CancelReservation(ctx, res.ID, "changed plans")
					return err
				}
			},
			check: func(t *testing.T, f *fixture, applied bool) {
				want := 0
				if applied {
					want = 1
				}
				assert.Equal(t, want, f.remaining(t, onlyBundleID(t, f)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/recovers", func(t *testing.T) {
			store := &commitConflictStore{Store: memory.NewStore()}
			f := newFixtureWithStore(t, store, 5, defaultBooking)
			run := tt.prepare(t, f)

			store.fail(1)
			require.NoError(t, run(context.Background()))
			assert.Equal(t, 2, store.commits)
			tt.check(t, f, true)
		})

		t.Run(tt.name+"/gives up", func(t *testing.T) {
			store := &commitConflictStore{Store: memory.NewStore()}
			f := newFixtureWithStore(t, store, 5, defaultBooking)
			run := tt.prepare(t, f)

			store.fail(defaultBooking.MaxAttempts)
			err := run(context.Background())
			require.Error(t, err)
			assert.Equal(t, entity.KindConcurrencyConflict, entity.KindOf(err))
			assert.NotContains(t, err.Error(), "serialize")
			assert.Equal(t, defaultBooking.MaxAttempts, store.commits)
			tt.check(t, f, false)
		})
	}
}

func TestCreateReservationExhaustedHidesStorageText(t *testing.T) {
	store := &commitConflictStore{Store: memory.NewStore()}
	f := newFixtureWithStore(t, store, 5, defaultBooking)
	b := f.bundle(t, "c1", 1)

	store.fail(defaultBooking.MaxAttempts)
	_, err := f.reserve(context.Background(), b.ID, entity.Holder{ConsumerID: "c1"})
	require.Error(t, err)
	assert.Equal(t, entity.KindCapacityExceeded, entity.KindOf(err))
	assert.Equal(t, "allocation capacity exceeded: create reservation", err.Error())
	assert.Equal(t, 1, f.remaining(t, b.ID))
}

func checkOnlyBundle(want entity.BundleStatus) func(t *testing.T, f *fixture, applied bool) {
	return func(t *testing.T, f *fixture, applied bool) {
		b, err := f.bundles.GetBundle(context.Background(), onlyBundleID(t, f))
		require.NoError(t, err)
		if applied {
			assert.Equal(t, want, b.Status)
		} else {
			assert.Equal(t, entity.BundleStatusActive, b.Status)
			assert.Equal(t, 3, b.RemainingUses)
		}
	}
}

// onlyBundleID возвращает id единственного абонемента, созданного в кейсе
func onlyBundleID(t *testing.T, f *fixture) string {
	t.Helper()
	require.Len(t, f.bundleIDs, 1)
	return f.bundleIDs[0]
}
