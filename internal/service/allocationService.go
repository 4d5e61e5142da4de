package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/schedule"
	"github.com/sirupsen/logrus"
)

type allocationService struct {
	txRunner
	store         database.Store
	slots         *schedule.SlotFinder
	validateSlots bool
	notifier      Notifier
}

func NewAllocationService(store database.Store, slots *schedule.SlotFinder, notifier Notifier, cfg config.BookingConfig) *allocationService {
	return &allocationService{
		txRunner:      newTxRunner(store, cfg),
		store:         store,
		slots:         slots,
		validateSlots: cfg.ValidateSlots,
		notifier:      notifier,
	}
}

// GetOrCreate возвращает размещение для (templateID, start), создавая его при необходимости
func (s *allocationService) GetOrCreate(ctx context.Context, templateID string, start time.Time) (*entity.Allocation, error) {
	return s.getOrCreate(ctx, s.store, templateID, start)
}

// getOrCreate работает с любым набором репозиториев, поэтому координатор вызывает его внутри своей транзакции
func (s *allocationService) getOrCreate(ctx context.Context, repos database.Repositories, templateID string, start time.Time) (*entity.Allocation, error) {
	if templateID == "" || start.IsZero() {
		return nil, entity.InvalidInput("template_id and start_time are required")
	}
	start = entity.NormalizeInstant(start)

	existing, err := repos.Allocations().GetByTemplateAndStart(ctx, templateID, start)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	t, err := repos.Templates().GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSlot(t, start); err != nil {
		return nil, err
	}

	a, err := repos.Allocations().InsertIfAbsent(ctx, &entity.Allocation{
		TemplateID: templateID,
		StartTime:  start,
		EndTime:    start.Add(t.EffectiveDuration()),
		Status:     entity.AllocationStatusAvailable,
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"allocation_id": a.ID,
		"template_id":   templateID,
		"start":         a.StartTime.Format(time.RFC3339),
	}).Debug("Allocation materialized")
	return a, nil
}

// checkSlot отклоняет начало вне лет действия шаблона, а при включенной проверке
// и время, которого нет в расписании
func (s *allocationService) checkSlot(t *entity.TimeSlotTemplate, start time.Time) error {
	loc, err := t.Location()
	if err != nil {
		return entity.InvalidInput("unknown time zone %q", t.TimeZone)
	}
	if !t.CoversYear(start.In(loc).Year()) {
		return fmt.Errorf("%w: start %s is outside template validity", entity.ErrNotAvailable, start.Format(time.RFC3339))
	}
	if !s.validateSlots || s.slots == nil {
		return nil
	}

	ok, err := s.slots.Covers(t, start)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: template does not yield start %s", entity.ErrNotAvailable, start.Format(time.RFC3339))
	}
	return nil
}

func (s *allocationService) Get(ctx context.Context, id string) (*entity.Allocation, error) {
	return s.store.Allocations().GetByID(ctx, id)
}

func (s *allocationService) ListForTemplate(ctx context.Context, templateID string, from, to time.Time) ([]*entity.Allocation, error) {
	if _, err := s.store.Templates().GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.store.Allocations().ListByTemplate(ctx, templateID, from, to)
}

func (s *allocationService) TryReserveSeats(ctx context.Context, id string, expectedVersion int64, seats int) (*entity.Allocation, error) {
	if seats < 1 {
		return nil, entity.InvalidInput("seats must be at least 1")
	}
	return s.store.Allocations().TryReserveSeats(ctx, id, expectedVersion, seats)
}

func (s *allocationService) ReleaseSeats(ctx context.Context, id string, seats int) (*entity.Allocation, error) {
	if seats < 1 {
		return nil, entity.InvalidInput("seats must be at least 1")
	}
	return s.store.Allocations().ReleaseSeats(ctx, id, seats)
}

// SetStatus переключает AVAILABLE/UNAVAILABLE. CANCELLED идет через CancelAllocation,
// чтобы вернуть занятия; отмененное размещение остается отмененным
func (s *allocationService) SetStatus(ctx context.Context, id string, status entity.AllocationStatus) (*entity.Allocation, error) {
	if !status.Valid() {
		return nil, entity.InvalidInput("unknown allocation status %q", status)
	}
	if status == entity.AllocationStatusCancelled {
		return s.CancelAllocation(ctx, id, "allocation cancelled")
	}

	var a *entity.Allocation
	err := s.retry(ctx, "set allocation status", entity.ErrConcurrencyConflict, func(tx database.Repositories) error {
		current, err := tx.Allocations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == entity.AllocationStatusCancelled {
			return fmt.Errorf("%w: allocation is cancelled", entity.ErrInvalidTransition)
		}
		a, err = tx.Allocations().SetStatus(ctx, id, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"allocation_id": id,
		"status":        status,
	}).Info("Allocation status changed")
	return a, nil
}

// CancelAllocation отменяет размещение и все его отменяемые бронирования
// в одной транзакции, затем рассылает уведомления
func (s *allocationService) CancelAllocation(ctx context.Context, id, reason string) (*entity.Allocation, error) {
	var (
		cancelled []*entity.Reservation
		result    *entity.Allocation
	)

	err := s.retry(ctx, "cancel allocation", entity.ErrConcurrencyConflict, func(tx database.Repositories) error {
		cancelled = nil

		a, err := tx.Allocations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == entity.AllocationStatusCancelled {
			return fmt.Errorf("%w: allocation already cancelled", entity.ErrInvalidTransition)
		}

		reservations, err := tx.Reservations().ListByAllocation(ctx, id)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if !res.Status.CanTransition(entity.ReservationStatusCancelled) {
				continue
			}
			if err := cancelInTx(ctx, tx, res, reason); err != nil {
				return err
			}
			cancelled = append(cancelled, res)
		}

		result, err = tx.Allocations().SetStatus(ctx, id, entity.AllocationStatusCancelled)
		return err
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"allocation_id":          id,
		"cancelled_reservations": len(cancelled),
	}).Info("Allocation cancelled")

	s.notifier.Notify(ctx, entity.Notification{
		EventType:    entity.EventAllocationCancelled,
		Timestamp:    time.Now().UTC(),
		AllocationID: id,
		Status:       string(entity.AllocationStatusCancelled),
	})
	for _, res := range cancelled {
		s.notifier.Notify(ctx, entity.NotificationFor(entity.EventReservationCancelled, res))
	}
	return result, nil
}
