package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/sirupsen/logrus"
)

// txRunner выполняет транзакции с ограниченным числом повторов при конфликтах
type txRunner struct {
	store       database.Store
	maxAttempts int
	txTimeout   time.Duration
}

func newTxRunner(store database.Store, cfg config.BookingConfig) txRunner {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return txRunner{
		store:       store,
		maxAttempts: maxAttempts,
		txTimeout:   cfg.TxTimeout,
	}
}

// retry запускает fn в новой транзакции, пока она не перестанет конфликтовать.
// Каждая попытка перечитывает данные. Когда попытки исчерпаны, возвращается exhausted.
func (r txRunner) retry(ctx context.Context, op string, exhausted error, fn func(tx database.Repositories) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, entity.ErrConcurrencyConflict) {
			return err
		}
		lastErr = err

		logrus.WithFields(logrus.Fields{
			"operation":    op,
			"attempt":      attempt,
			"max_attempts": r.maxAttempts,
		}).Warnf("Concurrent update, retrying: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"operation":    op,
		"max_attempts": r.maxAttempts,
	}).Errorf("Giving up after repeated conflicts: %v", lastErr)
	return fmt.Errorf("%w: %s", exhausted, op)
}

func (r txRunner) runTx(ctx context.Context, fn func(tx database.Repositories) error) error {
	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}
	return r.store.RunInTx(ctx, fn)
}
