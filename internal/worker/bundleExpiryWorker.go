package worker

import (
	"context"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/service"

	"github.com/sirupsen/logrus"
)

// BundleExpiryWorker закрывает абонементы с истекшим сроком действия
type BundleExpiryWorker struct {
	bundleService service.BundleService
	batchSize     int
	now           func() time.Time
}

func NewBundleExpiryWorker(bundleService service.BundleService, batchSize int) *BundleExpiryWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BundleExpiryWorker{
		bundleService: bundleService,
		batchSize:     batchSize,
		now:           time.Now,
	}
}

// Run обходит просроченные абонементы постранично. Неполная страница означает, что больше ничего нет
func (w *BundleExpiryWorker) Run(ctx context.Context) error {
	now := w.now().UTC()
	var (
		cursor         entity.ExpiryCursor
		total, skipped int
	)
	for {
		batch, err := w.bundleService.ExpireOverdue(ctx, now, cursor, w.batchSize)
		total += batch.Expired
		skipped += batch.Failed
		if err != nil {
			logrus.Errorf("Bundle expiry stopped after %d bundles: %v", total, err)
			return err
		}
		if batch.Listed < w.batchSize {
			break
		}
		cursor = batch.Next
	}

	if skipped > 0 {
		logrus.Warnf("Bundle expiry skipped %d bundles, they are retried on the next run", skipped)
	}
	if total > 0 {
		logrus.Infof("Bundle expiry completed: %d bundles expired", total)
	} else {
		logrus.Debug("No overdue bundles found")
	}
	return nil
}
