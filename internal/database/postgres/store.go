package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/database"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/lib/pq"
)

// unique index guarding one active reservation per (allocation, holder)
const activeHolderIndex = "ux_reservations_active_holder"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type repositories struct {
	templates    *templateRepository
	allocations  *allocationRepository
	reservations *reservationRepository
	bundles      *bundleRepository
	ledger       *ledgerRepository
	webhooks     *webhookRepository
}

func newRepositories(q querier) repositories {
	return repositories{
		templates:    &templateRepository{db: q},
		allocations:  &allocationRepository{db: q},
		reservations: &reservationRepository{db: q},
		bundles:      &bundleRepository{db: q},
		ledger:       &ledgerRepository{db: q},
		webhooks:     &webhookRepository{db: q},
	}
}

func (r repositories) Templates() database.TemplateRepository       { return r.templates }
func (r repositories) Allocations() database.AllocationRepository   { return r.allocations }
func (r repositories) Reservations() database.ReservationRepository { return r.reservations }
func (r repositories) Bundles() database.BundleRepository           { return r.bundles }
func (r repositories) Ledger() database.LedgerRepository            { return r.ledger }
func (r repositories) Webhooks() database.WebhookRepository         { return r.webhooks }

type Store struct {
	db *sql.DB
	repositories
}

var _ database.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, repositories: newRepositories(db)}
}

// RunInTx opens a SERIALIZABLE transaction. Serialization failures surface as
// entity.ErrConcurrencyConflict so the caller can retry from a fresh read.
func (s *Store) RunInTx(ctx context.Context, fn func(tx database.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if err := fn(newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// mapError translates driver errors into the domain taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", entity.ErrConcurrencyConflict, pqErr.Message)
		case "23505":
			if pqErr.Constraint == activeHolderIndex {
				return entity.ErrDuplicateBooking
			}
		case "23503":
			return fmt.Errorf("%w: %s", entity.ErrNotFound, pqErr.Detail)
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
