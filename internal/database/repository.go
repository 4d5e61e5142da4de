package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
)

type TemplateRepository interface {
	CreateSessionType(ctx context.Context, st *entity.SessionType) error
	GetSessionType(ctx context.Context, id string) (*entity.SessionType, error)
	CreateTemplate(ctx context.Context, t *entity.TimeSlotTemplate) error
	// GetTemplate loads the template together with its session type
	GetTemplate(ctx context.Context, id string) (*entity.TimeSlotTemplate, error)
}

type AllocationRepository interface {
	// InsertIfAbsent stores a unless (TemplateID, StartTime) already exists and
	// returns whichever row is stored afterwards.
	InsertIfAbsent(ctx context.Context, a *entity.Allocation) (*entity.Allocation, error)
	GetByID(ctx context.Context, id string) (*entity.Allocation, error)
	GetByTemplateAndStart(ctx context.Context, templateID string, start time.Time) (*entity.Allocation, error)
	ListByTemplate(ctx context.Context, templateID string, from, to time.Time) ([]*entity.Allocation, error)

	// TryReserveSeats is the only path that increments occupancy. It applies only when
	// version matches, status is AVAILABLE and capacity allows; otherwise ErrConcurrencyConflict.
	TryReserveSeats(ctx context.Context, id string, expectedVersion int64, seats int) (*entity.Allocation, error)
	ReleaseSeats(ctx context.Context, id string, seats int) (*entity.Allocation, error)
	SetStatus(ctx context.Context, id string, status entity.AllocationStatus) (*entity.Allocation, error)
}

type ReservationRepository interface {
	// Create fails with ErrDuplicateBooking when the holder already has an active reservation
	Create(ctx context.Context, r *entity.Reservation) error
	GetByID(ctx context.Context, id string) (*entity.Reservation, error)
	GetActiveByHolder(ctx context.Context, allocationID string, holder entity.Holder) (*entity.Reservation, error)
	ListByAllocation(ctx context.Context, allocationID string) ([]*entity.Reservation, error)
	ListByGroup(ctx context.Context, groupID string) ([]*entity.Reservation, error)
	// UpdateStatus applies only when the current status equals from
	UpdateStatus(ctx context.Context, id string, from, to entity.ReservationStatus, reason string) error

	CreateGroup(ctx context.Context, g *entity.GroupReservation) error
	GetGroup(ctx context.Context, id string) (*entity.GroupReservation, error)
	// AddGroupParticipants grows ParticipantCount when a member joins an existing group
	AddGroupParticipants(ctx context.Context, id string, delta int) error
}

type BundleRepository interface {
	Create(ctx context.Context, b *entity.Bundle) error
	GetByID(ctx context.Context, id string) (*entity.Bundle, error)
	SetStatus(ctx context.Context, id string, status entity.BundleStatus) error
	// ListExpirable returns ACTIVE or EXPENDED bundles whose validity ended before t,
	// ordered by (ValidUntil, ID) and starting after the cursor
	ListExpirable(ctx context.Context, before time.Time, after entity.ExpiryCursor, limit int) ([]*entity.Bundle, error)
}

// LedgerRepository is insert-only.
type LedgerRepository interface {
	Append(ctx context.Context, ev *entity.BundleUsageEvent) error
	// ListByBundle returns events ordered by (CreatedAt, Seq)
	ListByBundle(ctx context.Context, bundleID string) ([]*entity.BundleUsageEvent, error)
}

type WebhookRepository interface {
	Create(ctx context.Context, w *entity.Webhook) error
	GetByID(ctx context.Context, id string) (*entity.Webhook, error)
	ListActiveByEventType(ctx context.Context, eventType entity.EventType) ([]*entity.Webhook, error)
	LogDelivery(ctx context.Context, l *entity.WebhookDeliveryLog) error
	ListDeliveries(ctx context.Context, webhookID string) ([]*entity.WebhookDeliveryLog, error)
}

type Repositories interface {
	Templates() TemplateRepository
	Allocations() AllocationRepository
	Reservations() ReservationRepository
	Bundles() BundleRepository
	Ledger() LedgerRepository
	Webhooks() WebhookRepository
}

// Store is the storage handle injected into services.
type Store interface {
	Repositories
	// RunInTx runs fn inside one serializable transaction. A non-nil error from fn,
	// or a serialization failure, rolls everything back.
	RunInTx(ctx context.Context, fn func(tx Repositories) error) error
	Close() error
}
