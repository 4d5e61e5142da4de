package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
)

type ledgerService struct {
	txRunner
	store database.Store
}

func NewLedgerService(store database.Store, cfg config.BookingConfig) LedgerService {
	return &ledgerService{txRunner: newTxRunner(store, cfg), store: store}
}

func (s *ledgerService) RemainingUses(ctx context.Context, bundleID string) (int, error) {
	_, remaining, err := bundleBalance(ctx, s.store, bundleID)
	return remaining, err
}

// AppendEvent добавляет запись в журнал. Изменять и удалять записи нельзя
func (s *ledgerService) AppendEvent(ctx context.Context, bundleID, reservationID string, eventType entity.UsageEventType, quantity int) (*entity.BundleUsageEvent, error) {
	if !eventType.Valid() {
		return nil, entity.InvalidInput("unknown usage event type %q", eventType)
	}
	if quantity < 0 {
		return nil, entity.InvalidInput("quantity must not be negative")
	}

	var ev *entity.BundleUsageEvent
	err := s.retry(ctx, "append ledger event", entity.ErrConcurrencyConflict, func(tx database.Repositories) error {
		if _, err := tx.Bundles().GetByID(ctx, bundleID); err != nil {
			return err
		}
		var err error
		ev, err = appendEvent(ctx, tx, bundleID, reservationID, eventType, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (s *ledgerService) Events(ctx context.Context, bundleID string) ([]*entity.BundleUsageEvent, error) {
	if _, err := s.store.Bundles().GetByID(ctx, bundleID); err != nil {
		return nil, err
	}
	return s.store.Ledger().ListByBundle(ctx, bundleID)
}

// bundleBalance загружает абонемент и пересчитывает остаток по журналу
func bundleBalance(ctx context.Context, repos database.Repositories, bundleID string) (*entity.Bundle, int, error) {
	b, err := repos.Bundles().GetByID(ctx, bundleID)
	if err != nil {
		return nil, 0, err
	}
	events, err := repos.Ledger().ListByBundle(ctx, bundleID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load ledger of bundle %s: %w", bundleID, err)
	}
	return b, entity.RemainingUses(b.GrantedSessions(), events), nil
}

func appendEvent(ctx context.Context, repos database.Repositories, bundleID, reservationID string, eventType entity.UsageEventType, quantity int) (*entity.BundleUsageEvent, error) {
	ev := &entity.BundleUsageEvent{
		BundleID:      bundleID,
		ReservationID: reservationID,
		Type:          eventType,
		Quantity:      quantity,
	}
	if err := repos.Ledger().Append(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to append %s event: %w", eventType, err)
	}
	return ev, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, entity.ErrNotFound)
}
