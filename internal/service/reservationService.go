package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/sirupsen/logrus"
)

type reservationService struct {
	txRunner
	store       database.Store
	allocations *allocationService
	notifier    Notifier
}

// NewReservationService создает координатор бронирований
func NewReservationService(store database.Store, allocations *allocationService, notifier Notifier, cfg config.BookingConfig) ReservationService {
	return &reservationService{
		txRunner:    newTxRunner(store, cfg),
		store:       store,
		allocations: allocations,
		notifier:    notifier,
	}
}

// CreateReservation записывает одного участника на размещение и списывает одно занятие
func (s *reservationService) CreateReservation(ctx context.Context, req *CreateReservationRequest) (*entity.Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	status := initialStatus(req.Status)
	holder := req.Holder()

	var created *entity.Reservation
	err := s.retry(ctx, "create reservation", entity.ErrCapacityExceeded, func(tx database.Repositories) error {
		created = nil

		a, err := s.resolveAllocation(ctx, tx, req.AllocationID, req.TemplateID, req.StartTime)
		if err != nil {
			return err
		}
		if err := checkAdmissible(a, 1); err != nil {
			return err
		}
		if err := checkHolderFree(ctx, tx, a.ID, holder); err != nil {
			return err
		}

		b, remaining, err := spendableBundle(ctx, tx, req.BundleID, 1)
		if err != nil {
			return err
		}
		if holder.ConsumerID != "" && b.ConsumerID != holder.ConsumerID {
			return fmt.Errorf("%w: bundle belongs to another consumer", entity.ErrLedgerExhausted)
		}

		if req.GroupReservationID != "" {
			g, err := tx.Reservations().GetGroup(ctx, req.GroupReservationID)
			if err != nil {
				return err
			}
			if g.AllocationID != a.ID {
				return entity.InvalidInput("group reservation belongs to another allocation")
			}
			if err := tx.Reservations().AddGroupParticipants(ctx, g.ID, 1); err != nil {
				return err
			}
		}

		if _, err := tx.Allocations().TryReserveSeats(ctx, a.ID, a.Version, 1); err != nil {
			return err
		}

		res := &entity.Reservation{
			AllocationID:       a.ID,
			BundleID:           b.ID,
			ConsumerID:         holder.ConsumerID,
			OnBehalfOfName:     holder.OnBehalfOfName,
			Status:             status,
			GroupReservationID: req.GroupReservationID,
		}
		if err := tx.Reservations().Create(ctx, res); err != nil {
			return err
		}
		if err := spendCredits(ctx, tx, b.ID, remaining, res); err != nil {
			return err
		}

		created = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": created.ID,
		"allocation_id":  created.AllocationID,
		"bundle_id":      created.BundleID,
		"status":         created.Status,
	}).Info("Reservation created")

	s.notifier.Notify(ctx, entity.NotificationFor(entity.EventReservationCreated, created))
	return created, nil
}

// CreateGroupReservation записывает либо всех участников, либо никого
func (s *reservationService) CreateGroupReservation(ctx context.Context, req *CreateGroupReservationRequest) (*entity.GroupReservation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	status := initialStatus(req.Status)
	seats := len(req.Participants)

	seen := make(map[string]struct{}, seats)
	for _, p := range req.Participants {
		if _, dup := seen[p.Key()]; dup {
			return nil, fmt.Errorf("%w: participant %q is listed twice", entity.ErrDuplicateBooking, p.Key())
		}
		seen[p.Key()] = struct{}{}
	}

	var group *entity.GroupReservation
	err := s.retry(ctx, "create group reservation", entity.ErrCapacityExceeded, func(tx database.Repositories) error {
		group = nil

		a, err := s.resolveAllocation(ctx, tx, req.AllocationID, req.TemplateID, req.StartTime)
		if err != nil {
			return err
		}
		if err := checkAdmissible(a, seats); err != nil {
			return err
		}
		for _, p := range req.Participants {
			if err := checkHolderFree(ctx, tx, a.ID, p); err != nil {
				return err
			}
		}

		b, remaining, err := spendableBundle(ctx, tx, req.BundleID, seats)
		if err != nil {
			return err
		}

		if _, err := tx.Allocations().TryReserveSeats(ctx, a.ID, a.Version, seats); err != nil {
			return err
		}

		g := &entity.GroupReservation{
			Name:             req.Name,
			AllocationID:     a.ID,
			BundleID:         b.ID,
			ParticipantCount: seats,
		}
		if err := tx.Reservations().CreateGroup(ctx, g); err != nil {
			return err
		}

		rows := make([]*entity.Reservation, 0, seats)
		for _, p := range req.Participants {
			res := &entity.Reservation{
				AllocationID:       a.ID,
				BundleID:           b.ID,
				ConsumerID:         p.ConsumerID,
				OnBehalfOfName:     p.OnBehalfOfName,
				Status:             status,
				GroupReservationID: g.ID,
			}
			if err := tx.Reservations().Create(ctx, res); err != nil {
				return err
			}
			rows = append(rows, res)
		}
		if err := spendCredits(ctx, tx, b.ID, remaining, rows...); err != nil {
			return err
		}

		g.Reservations = rows
		group = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"group_reservation_id": group.ID,
		"allocation_id":        group.AllocationID,
		"participants":         group.ParticipantCount,
	}).Info("Group reservation created")

	s.notifier.Notify(ctx, entity.Notification{
		EventType:          entity.EventGroupReservationCreated,
		Timestamp:          time.Now().UTC(),
		AllocationID:       group.AllocationID,
		BundleID:           group.BundleID,
		GroupReservationID: group.ID,
	})
	for _, res := range group.Reservations {
		s.notifier.Notify(ctx, entity.NotificationFor(entity.EventReservationCreated, res))
	}
	return group, nil
}

// CancelReservation возвращает занятие на абонемент и освобождает место
func (s *reservationService) CancelReservation(ctx context.Context, id, reason string) (*entity.Reservation, error) {
	var cancelled *entity.Reservation
	err := s.retry(ctx, "cancel reservation", entity.ErrConcurrencyConflict, func(tx database.Repositories) error {
		res, err := tx.Reservations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := cancelInTx(ctx, tx, res, reason); err != nil {
			return err
		}
		cancelled = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": id,
		"reason":         reason,
	}).Info("Reservation cancelled")

	s.notifier.Notify(ctx, entity.NotificationFor(entity.EventReservationCancelled, cancelled))
	return cancelled, nil
}

func (s *reservationService) ConfirmReservation(ctx context.Context, id string) (*entity.Reservation, error) {
	return s.transition(ctx, id, entity.ReservationStatusPending, entity.ReservationStatusConfirmed, entity.EventReservationConfirmed)
}

// ValidateReservation отмечает посещение, не затрагивая журнал и вместимость
func (s *reservationService) ValidateReservation(ctx context.Context, id string) (*entity.Reservation, error) {
	return s.transition(ctx, id, entity.ReservationStatusConfirmed, entity.ReservationStatusValidated, entity.EventReservationValidated)
}

func (s *reservationService) transition(ctx context.Context, id string, from, to entity.ReservationStatus, event entity.EventType) (*entity.Reservation, error) {
	var updated *entity.Reservation
	err := s.retry(ctx, "update reservation", entity.ErrConcurrencyConflict, func(tx database.Repositories) error {
		res, err := tx.Reservations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if res.Status != from || !from.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", entity.ErrInvalidTransition, res.Status, to)
		}
		if err := tx.Reservations().UpdateStatus(ctx, id, from, to, ""); err != nil {
			return err
		}
		res.Status = to
		updated = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reservation_id": id,
		"status":         to,
	}).Info("Reservation status changed")

	s.notifier.Notify(ctx, entity.NotificationFor(event, updated))
	return updated, nil
}

func (s *reservationService) GetReservation(ctx context.Context, id string) (*entity.Reservation, error) {
	return s.store.Reservations().GetByID(ctx, id)
}

func (s *reservationService) ListAllocationReservations(ctx context.Context, allocationID string) ([]*entity.Reservation, error) {
	if _, err := s.store.Allocations().GetByID(ctx, allocationID); err != nil {
		return nil, err
	}
	return s.store.Reservations().ListByAllocation(ctx, allocationID)
}

func (s *reservationService) GetGroupReservation(ctx context.Context, id string) (*entity.GroupReservation, error) {
	g, err := s.store.Reservations().GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Reservations().ListByGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	g.Reservations = rows
	return g, nil
}

func (s *reservationService) resolveAllocation(ctx context.Context, tx database.Repositories, allocationID, templateID string, start time.Time) (*entity.Allocation, error) {
	if allocationID != "" {
		return tx.Allocations().GetByID(ctx, allocationID)
	}
	return s.allocations.getOrCreate(ctx, tx, templateID, start)
}

func initialStatus(status entity.ReservationStatus) entity.ReservationStatus {
	if status == "" {
		return entity.ReservationStatusConfirmed
	}
	return status
}

func checkAdmissible(a *entity.Allocation, seats int) error {
	if a.Status != entity.AllocationStatusAvailable {
		return fmt.Errorf("%w: allocation is %s", entity.ErrNotAvailable, a.Status)
	}
	if !a.CanAdmit(seats) {
		return fmt.Errorf("%w: %d of %d seats taken, %d requested", entity.ErrCapacityExceeded, a.Occupancy, a.MaxConsumers, seats)
	}
	return nil
}

func checkHolderFree(ctx context.Context, tx database.Repositories, allocationID string, holder entity.Holder) error {
	existing, err := tx.Reservations().GetActiveByHolder(ctx, allocationID, holder)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	return fmt.Errorf("%w: reservation %s", entity.ErrDuplicateBooking, existing.ID)
}

// spendableBundle возвращает абонемент и остаток, если их хватает на seats занятий
func spendableBundle(ctx context.Context, tx database.Repositories, bundleID string, seats int) (*entity.Bundle, int, error) {
	b, remaining, err := bundleBalance(ctx, tx, bundleID)
	if err != nil {
		return nil, 0, err
	}
	if !b.UsableAt(time.Now()) {
		return nil, 0, fmt.Errorf("%w: bundle is %s or outside its validity window", entity.ErrLedgerExhausted, b.Status)
	}
	if remaining < seats {
		return nil, 0, fmt.Errorf("%w: %d remaining, %d needed", entity.ErrLedgerExhausted, remaining, seats)
	}
	return b, remaining, nil
}

// spendCredits добавляет по одному USE на бронирование и переводит абонемент
// в EXPENDED, когда занятий не осталось
func spendCredits(ctx context.Context, tx database.Repositories, bundleID string, remaining int, rows ...*entity.Reservation) error {
	for _, res := range rows {
		if _, err := appendEvent(ctx, tx, bundleID, res.ID, entity.UsageEventUse, 1); err != nil {
			return err
		}
	}
	if remaining-len(rows) > 0 {
		return nil
	}
	return tx.Bundles().SetStatus(ctx, bundleID, entity.BundleStatusExpended)
}

// cancelInTx отменяет res внутри tx: смена статуса, возврат списанного, освобождение места.
// res обновляется на месте
func cancelInTx(ctx context.Context, tx database.Repositories, res *entity.Reservation, reason string) error {
	if !res.Status.CanTransition(entity.ReservationStatusCancelled) {
		return fmt.Errorf("%w: %s reservation cannot be cancelled", entity.ErrInvalidTransition, res.Status)
	}
	if err := tx.Reservations().UpdateStatus(ctx, res.ID, res.Status, entity.ReservationStatusCancelled, reason); err != nil {
		return err
	}

	events, err := tx.Ledger().ListByBundle(ctx, res.BundleID)
	if err != nil {
		return fmt.Errorf("failed to load ledger of bundle %s: %w", res.BundleID, err)
	}
	if _, err := appendEvent(ctx, tx, res.BundleID, res.ID, entity.UsageEventRefund, entity.UsedByReservation(events, res.ID)); err != nil {
		return err
	}
	if _, err := tx.Allocations().ReleaseSeats(ctx, res.AllocationID, 1); err != nil {
		return err
	}

	b, remaining, err := bundleBalance(ctx, tx, res.BundleID)
	if err != nil {
		return err
	}
	if b.Status == entity.BundleStatusExpended && remaining > 0 {
		if err := tx.Bundles().SetStatus(ctx, b.ID, entity.BundleStatusActive); err != nil {
			return err
		}
	}

	res.Status = entity.ReservationStatusCancelled
	res.CancelReason = reason
	return nil
}
