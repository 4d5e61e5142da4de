package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/google/uuid"
)

const bundleColumns = `
	id, consumer_id, status, valid_from, valid_until, items, parent_bundle_id, created_at, updated_at
`

type bundleRepository struct {
	db querier
}

func scanBundle(row rowScanner) (*entity.Bundle, error) {
	var (
		b          entity.Bundle
		validUntil sql.NullTime
		items      []byte
		parent     sql.NullString
	)
	err := row.Scan(
		&b.ID,
		&b.ConsumerID,
		&b.Status,
		&b.ValidFrom,
		&validUntil,
		&items,
		&parent,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &b.Items); err != nil {
		return nil, fmt.Errorf("failed to decode bundle items: %w", err)
	}
	if validUntil.Valid {
		b.ValidUntil = validUntil.Time
	}
	b.ParentBundleID = parent.String
	return &b, nil
}

func (r *bundleRepository) Create(ctx context.Context, b *entity.Bundle) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	items, err := json.Marshal(b.Items)
	if err != nil {
		return fmt.Errorf("failed to encode bundle items: %w", err)
	}
	query := `
		INSERT INTO bundles (
			id, consumer_id, status, valid_from, valid_until, items, parent_bundle_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		b.ID,
		b.ConsumerID,
		b.Status,
		b.ValidFrom,
		nullTime(b.ValidUntil),
		items,
		nullString(b.ParentBundleID),
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", mapError(err))
	}
	return nil
}

func (r *bundleRepository) GetByID(ctx context.Context, id string) (*entity.Bundle, error) {
	query := `SELECT ` + bundleColumns + ` FROM bundles WHERE id = $1`
	b, err := scanBundle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrBundleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bundle: %w", mapError(err))
	}
	return b, nil
}

func (r *bundleRepository) SetStatus(ctx context.Context, id string, status entity.BundleStatus) error {
	query := `UPDATE bundles SET status = $2, updated_at = now() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update bundle status: %w", mapError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrBundleNotFound
	}
	return nil
}

// ListExpirable pages with a keyset on (valid_until, id), so rows that keep
// failing to expire do not hold back the ones after them.
func (r *bundleRepository) ListExpirable(ctx context.Context, before time.Time, after entity.ExpiryCursor, limit int) ([]*entity.Bundle, error) {
	query := `
		SELECT ` + bundleColumns + `
		FROM bundles
		WHERE status IN ('ACTIVE', 'EXPENDED') AND valid_until IS NOT NULL AND valid_until < $1
		  AND ($2::timestamptz IS NULL OR (valid_until, id) > ($2::timestamptz, $3))
		ORDER BY valid_until, id
		LIMIT $4
	`
	var from sql.NullTime
	if !after.IsZero() {
		from = sql.NullTime{Time: after.ValidUntil, Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, query, before, from, after.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expirable bundles: %w", mapError(err))
	}
	defer rows.Close()

	var bundles []*entity.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bundle: %w", err)
		}
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bundles: %w", mapError(err))
	}
	return bundles, nil
}

type ledgerRepository struct {
	db querier
}

// Append inserts one event; seq comes from a BIGSERIAL column.
func (r *ledgerRepository) Append(ctx context.Context, ev *entity.BundleUsageEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO bundle_usage_events (id, bundle_id, reservation_id, type, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`
	err := r.db.QueryRowContext(ctx, query,
		ev.ID,
		ev.BundleID,
		nullString(ev.ReservationID),
		ev.Type,
		ev.Quantity,
		ev.CreatedAt,
	).Scan(&ev.Seq)
	if err != nil {
		return fmt.Errorf("failed to append ledger event: %w", mapError(err))
	}
	return nil
}

func (r *ledgerRepository) ListByBundle(ctx context.Context, bundleID string) ([]*entity.BundleUsageEvent, error) {
	query := `
		SELECT id, bundle_id, reservation_id, type, quantity, seq, created_at
		FROM bundle_usage_events
		WHERE bundle_id = $1
		ORDER BY created_at, seq
	`
	rows, err := r.db.QueryContext(ctx, query, bundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", mapError(err))
	}
	defer rows.Close()

	var events []*entity.BundleUsageEvent
	for rows.Next() {
		var (
			ev          entity.BundleUsageEvent
			reservation sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.BundleID, &reservation, &ev.Type, &ev.Quantity, &ev.Seq, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		ev.ReservationID = reservation.String
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger events: %w", mapError(err))
	}
	return events, nil
}
