package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/database/memory"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, entity.Notification) {}

// TestBundleExpiryWorkerRun проверяет, что воркер проходит все пачки просроченных абонементов
func TestBundleExpiryWorkerRun(t *testing.T) {
	ctx := context.Background()
	bundles := service.NewBundleService(memory.NewStore(), nopNotifier{}, config.BookingConfig{MaxAttempts: 3})
	now := time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)

	var overdue []string
	for i := 0; i < 5; i++ {
		b, err := bundles.CreateBundle(ctx, &service.CreateBundleRequest{
			ConsumerID: "c1",
			ValidFrom:  now.AddDate(0, -1, 0),
			ValidUntil: now.Add(-time.Duration(i+1) * time.Hour),
			Items:      []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: 10}},
		})
		require.NoError(t, err)
		overdue = append(overdue, b.ID)
	}
	current, err := bundles.CreateBundle(ctx, &service.CreateBundleRequest{
		ConsumerID: "c2",
		ValidFrom:  now.AddDate(0, -1, 0),
		ValidUntil: now.Add(time.Hour),
		Items:      []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: 10}},
	})
	require.NoError(t, err)

	w := NewBundleExpiryWorker(bundles, 2)
	w.now = func() time.Time { return now }
	require.NoError(t, w.Run(ctx))

	for _, id := range overdue {
		b, err := bundles.GetBundle(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.BundleStatusExpired, b.Status)
		assert.Zero(t, b.RemainingUses)
	}
	b, err := bundles.GetBundle(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BundleStatusActive, b.Status)
}

type failingBundles struct {
	service.BundleService
	calls int
}

func (f *failingBundles) ExpireOverdue(ctx context.Context, now time.Time, after entity.ExpiryCursor, limit int) (service.ExpiryBatch, error) {
	f.calls++
	return service.ExpiryBatch{}, errors.New("database is down")
}

func TestBundleExpiryWorkerStopsOnError(t *testing.T) {
	bundles := &failingBundles{}
	w := NewBundleExpiryWorker(bundles, 0)

	assert.Error(t, w.Run(context.Background()))
	assert.Equal(t, 1, bundles.calls)
	assert.Equal(t, 100, w.batchSize)
}

// stuckStore не дает сменить статус перечисленных абонементов
type stuckStore struct {
	*memory.Store
	stuck map[string]bool
}

func (s *stuckStore) RunInTx(ctx context.Context, fn func(tx database.Repositories) error) error {
	return s.Store.RunInTx(ctx, func(tx database.Repositories) error {
		return fn(stuckRepos{Repositories: tx, stuck: s.stuck})
	})
}

type stuckRepos struct {
	database.Repositories
	stuck map[string]bool
}

func (r stuckRepos) Bundles() database.BundleRepository {
	return stuckBundles{BundleRepository: r.Repositories.Bundles(), stuck: r.stuck}
}

type stuckBundles struct {
	database.BundleRepository
	stuck map[string]bool
}

func (b stuckBundles) SetStatus(ctx context.Context, id string, status entity.BundleStatus) error {
	if b.stuck[id] {
		return errors.New("row is locked by maintenance")
	}
	return b.BundleRepository.SetStatus(ctx, id, status)
}

func TestBundleExpiryWorkerMovesPastFailures(t *testing.T) {
	ctx := context.Background()
	store := &stuckStore{Store: memory.NewStore(), stuck: map[string]bool{}}
	bundles := service.NewBundleService(store, nopNotifier{}, config.BookingConfig{MaxAttempts: 3})
	now := time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)

	// два самых старых занимают целую страницу и никогда не закрываются
	ids := make([]string, 5)
	for i := range ids {
		b, err := bundles.CreateBundle(ctx, &service.CreateBundleRequest{
			ConsumerID: "c1",
			ValidFrom:  now.AddDate(0, -1, 0),
			ValidUntil: now.Add(-time.Duration(10-i) * time.Hour),
			Items:      []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: 2}},
		})
		require.NoError(t, err)
		ids[i] = b.ID
	}
	store.stuck[ids[0]] = true
	store.stuck[ids[1]] = true

	w := NewBundleExpiryWorker(bundles, 2)
	w.now = func() time.Time { return now }
	require.NoError(t, w.Run(ctx))

	for i, id := range ids {
		b, err := bundles.GetBundle(ctx, id)
		require.NoError(t, err)
		if store.stuck[id] {
			assert.Equal(t, entity.BundleStatusActive, b.Status, "bundle %d", i)
			assert.Equal(t, 2, b.RemainingUses)
		} else {
			assert.Equal(t, entity.BundleStatusExpired, b.Status, "bundle %d", i)
		}
	}
}
