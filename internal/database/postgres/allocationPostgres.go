package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/google/uuid"
)

// max_consumers is never stored on the allocation; it is read through the template
const allocationSelect = `
	SELECT
		a.id, a.template_id, a.start_time, a.end_time, a.status,
		a.occupancy, a.version, st.max_consumers, a.created_at, a.updated_at
	FROM allocations a
	JOIN time_slot_templates t ON t.id = a.template_id
	JOIN session_types st ON st.id = t.session_type_id
`

const allocationReturning = `
	RETURNING
		a.id, a.template_id, a.start_time, a.end_time, a.status,
		a.occupancy, a.version, st.max_consumers, a.created_at, a.updated_at
`

type allocationRepository struct {
	db querier
}

func scanAllocation(row rowScanner) (*entity.Allocation, error) {
	var a entity.Allocation
	err := row.Scan(
		&a.ID,
		&a.TemplateID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.Occupancy,
		&a.Version,
		&a.MaxConsumers,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return &a, nil
}

func (r *allocationRepository) InsertIfAbsent(ctx context.Context, a *entity.Allocation) (*entity.Allocation, error) {
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}
	start := entity.NormalizeInstant(a.StartTime)

	// concurrent first calls converge on one row: the loser inserts nothing
	query := `
		INSERT INTO allocations (
			id, template_id, start_time, end_time, status, occupancy, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 0, 0, now(), now())
		ON CONFLICT (template_id, start_time) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		id,
		a.TemplateID,
		start,
		entity.NormalizeInstant(a.EndTime),
		a.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert allocation: %w", mapError(err))
	}

	return r.GetByTemplateAndStart(ctx, a.TemplateID, start)
}

func (r *allocationRepository) GetByID(ctx context.Context, id string) (*entity.Allocation, error) {
	a, err := scanAllocation(r.db.QueryRowContext(ctx, allocationSelect+` WHERE a.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation: %w", mapError(err))
	}
	return a, nil
}

func (r *allocationRepository) GetByTemplateAndStart(ctx context.Context, templateID string, start time.Time) (*entity.Allocation, error) {
	a, err := scanAllocation(r.db.QueryRowContext(ctx,
		allocationSelect+` WHERE a.template_id = $1 AND a.start_time = $2`,
		templateID, entity.NormalizeInstant(start),
	))
	if err == sql.ErrNoRows {
		return nil, entity.ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation by template and start: %w", mapError(err))
	}
	return a, nil
}

func (r *allocationRepository) ListByTemplate(ctx context.Context, templateID string, from, to time.Time) ([]*entity.Allocation, error) {
	query := allocationSelect + `
		WHERE a.template_id = $1
		  AND ($2::timestamptz IS NULL OR a.start_time >= $2)
		  AND ($3::timestamptz IS NULL OR a.start_time < $3)
		ORDER BY a.start_time
	`
	rows, err := r.db.QueryContext(ctx, query, templateID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", mapError(err))
	}
	defer rows.Close()

	var allocations []*entity.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", mapError(err))
	}
	return allocations, nil
}

func (r *allocationRepository) TryReserveSeats(ctx context.Context, id string, expectedVersion int64, seats int) (*entity.Allocation, error) {
	query := `
		UPDATE allocations a
		SET occupancy = a.occupancy + $3, version = a.version + 1, updated_at = now()
		FROM time_slot_templates t
		JOIN session_types st ON st.id = t.session_type_id
		WHERE t.id = a.template_id
		  AND a.id = $1
		  AND a.version = $2
		  AND a.status = 'AVAILABLE'
		  AND a.occupancy + $3 <= st.max_consumers
	` + allocationReturning

	a, err := scanAllocation(r.db.QueryRowContext(ctx, query, id, expectedVersion, seats))
	if err == sql.ErrNoRows {
		return nil, entity.ErrConcurrencyConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve seats: %w", mapError(err))
	}
	return a, nil
}

func (r *allocationRepository) ReleaseSeats(ctx context.Context, id string, seats int) (*entity.Allocation, error) {
	query := `
		UPDATE allocations a
		SET occupancy = GREATEST(a.occupancy - $2, 0), version = a.version + 1, updated_at = now()
		FROM time_slot_templates t
		JOIN session_types st ON st.id = t.session_type_id
		WHERE t.id = a.template_id AND a.id = $1
	` + allocationReturning

	a, err := scanAllocation(r.db.QueryRowContext(ctx, query, id, seats))
	if err == sql.ErrNoRows {
		return nil, entity.ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release seats: %w", mapError(err))
	}
	return a, nil
}

func (r *allocationRepository) SetStatus(ctx context.Context, id string, status entity.AllocationStatus) (*entity.Allocation, error) {
	query := `
		UPDATE allocations a
		SET status = $2, version = a.version + 1, updated_at = now()
		FROM time_slot_templates t
		JOIN session_types st ON st.id = t.session_type_id
		WHERE t.id = a.template_id AND a.id = $1
	` + allocationReturning

	a, err := scanAllocation(r.db.QueryRowContext(ctx, query, id, status))
	if err == sql.ErrNoRows {
		return nil, entity.ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set allocation status: %w", mapError(err))
	}
	return a, nil
}
