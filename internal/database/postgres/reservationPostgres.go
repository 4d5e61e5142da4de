package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/google/uuid"
)

const reservationColumns = `
	id, allocation_id, bundle_id, consumer_id, on_behalf_of_name,
	status, group_reservation_id, cancel_reason, created_at, updated_at
`

type reservationRepository struct {
	db querier
}

func scanReservation(row rowScanner) (*entity.Reservation, error) {
	var (
		res                        entity.Reservation
		consumer, guest, group, rs sql.NullString
	)
	err := row.Scan(
		&res.ID,
		&res.AllocationID,
		&res.BundleID,
		&consumer,
		&guest,
		&res.Status,
		&group,
		&rs,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.ConsumerID = consumer.String
	res.OnBehalfOfName = guest.String
	res.GroupReservationID = group.String
	res.CancelReason = rs.String
	return &res, nil
}

// Create relies on the partial unique index over (allocation_id, holder_key)
// for active rows; a violation comes back as entity.ErrDuplicateBooking.
func (r *reservationRepository) Create(ctx context.Context, res *entity.Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	query := `
		INSERT INTO reservations (
			id, allocation_id, bundle_id, consumer_id, on_behalf_of_name, holder_key,
			status, group_reservation_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		res.ID,
		res.AllocationID,
		res.BundleID,
		nullString(res.ConsumerID),
		nullString(res.OnBehalfOfName),
		res.Holder().Key(),
		res.Status,
		nullString(res.GroupReservationID),
	).Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if mapped := mapError(err); mapped == entity.ErrDuplicateBooking {
			return mapped
		}
		return fmt.Errorf("failed to create reservation: %w", mapError(err))
	}
	return nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id string) (*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", mapError(err))
	}
	return res, nil
}

func (r *reservationRepository) GetActiveByHolder(ctx context.Context, allocationID string, holder entity.Holder) (*entity.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM reservations
		WHERE allocation_id = $1 AND holder_key = $2 AND status <> 'CANCELLED'
		LIMIT 1
	`
	res, err := scanReservation(r.db.QueryRowContext(ctx, query, allocationID, holder.Key()))
	if err == sql.ErrNoRows {
		return nil, entity.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check active reservation: %w", mapError(err))
	}
	return res, nil
}

func (r *reservationRepository) list(ctx context.Context, where string, arg interface{}) ([]*entity.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` + where + ` ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", mapError(err))
	}
	defer rows.Close()

	var reservations []*entity.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", mapError(err))
	}
	return reservations, nil
}

func (r *reservationRepository) ListByAllocation(ctx context.Context, allocationID string) ([]*entity.Reservation, error) {
	return r.list(ctx, "allocation_id = $1", allocationID)
}

func (r *reservationRepository) ListByGroup(ctx context.Context, groupID string) ([]*entity.Reservation, error) {
	return r.list(ctx, "group_reservation_id = $1", groupID)
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, id string, from, to entity.ReservationStatus, reason string) error {
	query := `
		UPDATE reservations
		SET status = $3, cancel_reason = COALESCE(NULLIF($4, ''), cancel_reason), updated_at = now()
		WHERE id = $1 AND status = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, from, to, reason)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", mapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return entity.ErrConcurrencyConflict
	}
	return nil
}

func (r *reservationRepository) CreateGroup(ctx context.Context, g *entity.GroupReservation) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	query := `
		INSERT INTO group_reservations (id, name, allocation_id, bundle_id, participant_count, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		g.ID, g.Name, g.AllocationID, g.BundleID, g.ParticipantCount,
	).Scan(&g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create group reservation: %w", mapError(err))
	}
	return nil
}

func (r *reservationRepository) GetGroup(ctx context.Context, id string) (*entity.GroupReservation, error) {
	query := `
		SELECT id, name, allocation_id, bundle_id, participant_count, created_at
		FROM group_reservations
		WHERE id = $1
	`
	var g entity.GroupReservation
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.AllocationID, &g.BundleID, &g.ParticipantCount, &g.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrGroupReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group reservation: %w", mapError(err))
	}
	return &g, nil
}

func (r *reservationRepository) AddGroupParticipants(ctx context.Context, id string, delta int) error {
	query := `UPDATE group_reservations SET participant_count = participant_count + $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("failed to update group reservation: %w", mapError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return entity.ErrGroupReservationNotFound
	}
	return nil
}
