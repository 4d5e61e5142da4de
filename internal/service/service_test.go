package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/database/memory"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/schedule"
	"github.com/stretchr/testify/require"
)

// recordingNotifier keeps every notification handed to it.
type recordingNotifier struct {
	mu  sync.Mutex
	got []entity.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n entity.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) count(eventType entity.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.got {
		if got.EventType == eventType {
			n++
		}
	}
	return n
}

// conflictStore makes the first failures seat reservations lose their version check.
type conflictStore struct {
	*memory.Store

	mu       sync.Mutex
	failures int
	calls    int
}

func (c *conflictStore) RunInTx(ctx context.Context, fn func(tx database.Repositories) error) error {
	return c.Store.RunInTx(ctx, func(tx database.Repositories) error {
		return fn(conflictRepos{Repositories: tx, store: c})
	})
}

type conflictRepos struct {
	database.Repositories
	store *conflictStore
}

func (r conflictRepos) Allocations() database.AllocationRepository {
	return conflictAllocations{AllocationRepository: r.Repositories.Allocations(), store: r.store}
}

type conflictAllocations struct {
	database.AllocationRepository
	store *conflictStore
}

func (a conflictAllocations) TryReserveSeats(ctx context.Context, id string, expectedVersion int64, seats int) (*entity.Allocation, error) {
	a.store.mu.Lock()
	a.store.calls++
	inject := a.store.failures > 0
	if inject {
		a.store.failures--
	}
	a.store.mu.Unlock()

	if inject {
		return nil, fmt.Errorf("failed to reserve seats: %w: could not serialize access", entity.ErrConcurrencyConflict)
	}
	return a.AllocationRepository.TryReserveSeats(ctx, id, expectedVersion, seats)
}

// commitConflictStore fails the commit of the next failures transactions the way
// a serialization failure does: fn runs, then everything is rolled back.
type commitConflictStore struct {
	*memory.Store

	mu       sync.Mutex
	failures int
	commits  int
}

func (c *commitConflictStore) fail(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = n
	c.commits = 0
}

func (c *commitConflictStore) RunInTx(ctx context.Context, fn func(tx database.Repositories) error) error {
	return c.Store.RunInTx(ctx, func(tx database.Repositories) error {
		if err := fn(tx); err != nil {
			return err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		c.commits++
		if c.failures > 0 {
			c.failures--
			return fmt.Errorf("failed to commit transaction: %w: could not serialize access", entity.ErrConcurrencyConflict)
		}
		return nil
	})
}

// slowStore holds every transaction open for delay before committing.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowStore) RunInTx(ctx context.Context, fn func(tx database.Repositories) error) error {
	return s.Store.RunInTx(ctx, func(tx database.Repositories) error {
		time.Sleep(s.delay)
		return fn(tx)
	})
}

type fixture struct {
	store        database.Store
	notifier     *recordingNotifier
	templates    TemplateService
	allocations  *allocationService
	reservations ReservationService
	bundles      BundleService
	ledger       LedgerService
	template     *entity.TimeSlotTemplate
	start        time.Time
	bundleIDs    []string
}

var defaultBooking = config.BookingConfig{MaxAttempts: 3, TxTimeout: 5 * time.Second, ValidateSlots: true}

func newFixture(t *testing.T, maxConsumers int) *fixture {
	return newFixtureWithStore(t, memory.NewStore(), maxConsumers, defaultBooking)
}

func newFixtureWithStore(t *testing.T, store database.Store, maxConsumers int, booking config.BookingConfig) *fixture {
	t.Helper()
	ctx := context.Background()

	slots := schedule.NewSlotFinder(schedule.NewCronExpander(), 0)
	notifier := &recordingNotifier{}
	f := &fixture{
		store:     store,
		notifier:  notifier,
		templates: NewTemplateService(store, slots),
		ledger:    NewLedgerService(store, booking),
		bundles:   NewBundleService(store, notifier, booking),
		start:     time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC),
	}
	f.allocations = NewAllocationService(store, slots, notifier, booking)
	f.reservations = NewReservationService(store, f.allocations, notifier, booking)

	st, err := f.templates.CreateSessionType(ctx, &CreateSessionTypeRequest{
		Name:                   "reformer pilates",
		MaxConsumers:           maxConsumers,
		DefaultDurationMinutes: 50,
	})
	require.NoError(t, err)

	f.template, err = f.templates.CreateTemplate(ctx, &CreateTemplateRequest{
		RecurrenceExpr: "0 18 * * *",
		TimeZone:       "UTC",
		SessionTypeID:  st.ID,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) bundle(t *testing.T, consumerID string, sessions int) *entity.BundleWithBalance {
	t.Helper()
	b, err := f.bundles.CreateBundle(context.Background(), &CreateBundleRequest{
		ConsumerID: consumerID,
		Items:      []entity.CreditItem{{Type: entity.CreditItemSession, Quantity: sessions}},
	})
	require.NoError(t, err)
	f.bundleIDs = append(f.bundleIDs, b.ID)
	return b
}

func (f *fixture) reserve(ctx context.Context, bundleID string, holder entity.Holder) (*entity.Reservation, error) {
	return f.reservations.CreateReservation(ctx, &CreateReservationRequest{
		BundleID:       bundleID,
		TemplateID:     f.template.ID,
		StartTime:      f.start,
		ConsumerID:     holder.ConsumerID,
		OnBehalfOfName: holder.OnBehalfOfName,
	})
}

func (f *fixture) remaining(t *testing.T, bundleID string) int {
	t.Helper()
	n, err := f.ledger.RemainingUses(context.Background(), bundleID)
	require.NoError(t, err)
	return n
}
