package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/google/uuid"
)

type templateRepository struct {
	db querier
}

func (r *templateRepository) CreateSessionType(ctx context.Context, st *entity.SessionType) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	query := `
		INSERT INTO session_types (id, name, max_consumers, default_duration_minutes, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		st.ID, st.Name, st.MaxConsumers, st.DefaultDurationMinutes,
	).Scan(&st.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session type: %w", mapError(err))
	}
	return nil
}

func (r *templateRepository) GetSessionType(ctx context.Context, id string) (*entity.SessionType, error) {
	query := `
		SELECT id, name, max_consumers, default_duration_minutes, created_at
		FROM session_types
		WHERE id = $1
	`
	var st entity.SessionType
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&st.ID, &st.Name, &st.MaxConsumers, &st.DefaultDurationMinutes, &st.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrSessionTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session type: %w", mapError(err))
	}
	return &st, nil
}

func (r *templateRepository) CreateTemplate(ctx context.Context, t *entity.TimeSlotTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `
		INSERT INTO time_slot_templates (
			id, recurrence_expr, time_zone, valid_from_year, valid_to_year,
			duration_minutes, session_type_id, instructor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		t.ID,
		t.RecurrenceExpr,
		t.TimeZone,
		nullInt(t.ValidFromYear),
		nullInt(t.ValidToYear),
		nullInt(t.DurationMinutes),
		t.SessionTypeID,
		nullString(t.InstructorID),
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", mapError(err))
	}
	return nil
}

func (r *templateRepository) GetTemplate(ctx context.Context, id string) (*entity.TimeSlotTemplate, error) {
	query := `
		SELECT
			t.id, t.recurrence_expr, t.time_zone, t.valid_from_year, t.valid_to_year,
			t.duration_minutes, t.session_type_id, t.instructor_id, t.created_at,
			st.id, st.name, st.max_consumers, st.default_duration_minutes, st.created_at
		FROM time_slot_templates t
		JOIN session_types st ON st.id = t.session_type_id
		WHERE t.id = $1
	`
	var (
		t                              entity.TimeSlotTemplate
		st                             entity.SessionType
		fromYear, toYear, durationMins sql.NullInt64
		instructor                     sql.NullString
		stCreated                      time.Time
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.RecurrenceExpr, &t.TimeZone, &fromYear, &toYear,
		&durationMins, &t.SessionTypeID, &instructor, &t.CreatedAt,
		&st.ID, &st.Name, &st.MaxConsumers, &st.DefaultDurationMinutes, &stCreated,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", mapError(err))
	}

	t.ValidFromYear = int(fromYear.Int64)
	t.ValidToYear = int(toYear.Int64)
	t.DurationMinutes = int(durationMins.Int64)
	t.InstructorID = instructor.String
	st.CreatedAt = stCreated
	t.SessionType = &st
	return &t, nil
}
