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

type bundleService struct {
	txRunner
	store    database.Store
	notifier Notifier
}

func NewBundleService(store database.Store, notifier Notifier, cfg config.BookingConfig) BundleService {
	return &bundleService{txRunner: newTxRunner(store, cfg), store: store, notifier: notifier}
}

func (s *bundleService) CreateBundle(ctx context.Context, req *CreateBundleRequest) (*entity.BundleWithBalance, error) {
	b := &entity.Bundle{
		ConsumerID:     req.ConsumerID,
		Status:         entity.BundleStatusActive,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		Items:          req.Items,
		ParentBundleID: req.ParentBundleID,
	}
	if b.ValidFrom.IsZero() {
		b.ValidFrom = time.Now().UTC()
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if b.ParentBundleID != "" {
		if _, err := s.store.Bundles().GetByID(ctx, b.ParentBundleID); err != nil {
			return nil, fmt.Errorf("parent %w", err)
		}
	}

	if err := s.store.Bundles().Create(ctx, b); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"bundle_id":   b.ID,
		"consumer_id": b.ConsumerID,
		"granted":     b.GrantedSessions(),
	}).Info("Bundle created")
	return &entity.BundleWithBalance{Bundle: *b, RemainingUses: b.GrantedSessions()}, nil
}

func (s *bundleService) GetBundle(ctx context.Context, id string) (*entity.BundleWithBalance, error) {
	b, remaining, err := bundleBalance(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return &entity.BundleWithBalance{Bundle: *b, RemainingUses: remaining}, nil
}

func (s *bundleService) ExpireBundle(ctx context.Context, id string) (*entity.BundleWithBalance, error) {
	return s.close(ctx, id, entity.UsageEventExpire, entity.BundleStatusExpired, entity.EventBundleExpired)
}

func (s *bundleService) CancelBundle(ctx context.Context, id string) (*entity.BundleWithBalance, error) {
	return s.close(ctx, id, entity.UsageEventCancel, entity.BundleStatusCancelled, entity.EventBundleCancelled)
}

// close добавляет завершающее событие в журнал и переводит абонемент в конечный статус
func (s *bundleService) close(ctx context.Context, id string, evType entity.UsageEventType, status entity.BundleStatus, notify entity.EventType) (*entity.BundleWithBalance, error) {
	var result *entity.Bundle

	err := s.retry(ctx, "close bundle", entity.ErrConcurrencyConflict, func(tx database.Repositories) error {
		result = nil

		b, err := tx.Bundles().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b.IsTerminal() {
			return fmt.Errorf("%w: bundle is already %s", entity.ErrInvalidTransition, b.Status)
		}

		if _, err := appendEvent(ctx, tx, id, "", evType, 0); err != nil {
			return err
		}
		if err := tx.Bundles().SetStatus(ctx, id, status); err != nil {
			return err
		}
		b.Status = status
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"bundle_id": id,
		"status":    status,
	}).Info("Bundle closed")

	s.notifier.Notify(ctx, entity.Notification{
		EventType:  notify,
		Timestamp:  time.Now().UTC(),
		BundleID:   id,
		ConsumerID: result.ConsumerID,
		Status:     string(status),
	})
	return &entity.BundleWithBalance{Bundle: *result}, nil
}

// ExpireOverdue закрывает абонементы, срок которых истек до now, начиная после курсора.
// Ошибка на одном абонементе логируется и не останавливает пачку, Next в любом случае
// сдвигается за него
func (s *bundleService) ExpireOverdue(ctx context.Context, now time.Time, after entity.ExpiryCursor, limit int) (ExpiryBatch, error) {
	batch := ExpiryBatch{Next: after}

	bundles, err := s.store.Bundles().ListExpirable(ctx, now, after, limit)
	if err != nil {
		return batch, fmt.Errorf("failed to list expirable bundles: %w", err)
	}
	batch.Listed = len(bundles)

	for _, b := range bundles {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		batch.Next = entity.CursorAt(b)
		if _, err := s.ExpireBundle(ctx, b.ID); err != nil {
			batch.Failed++
			logrus.WithField("bundle_id", b.ID).Errorf("Failed to expire bundle: %v", err)
			continue
		}
		batch.Expired++
	}
	return batch, nil
}
