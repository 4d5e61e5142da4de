package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/google/uuid"
)

type webhookRepository struct {
	db querier
}

func (r *webhookRepository) Create(ctx context.Context, w *entity.Webhook) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	query := `
		INSERT INTO webhooks (id, event_type, target_url, secret, active, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		w.ID, w.EventType, w.TargetURL, w.Secret, w.Active,
	).Scan(&w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", mapError(err))
	}
	return nil
}

func (r *webhookRepository) GetByID(ctx context.Context, id string) (*entity.Webhook, error) {
	query := `
		SELECT id, event_type, target_url, secret, active, created_at
		FROM webhooks
		WHERE id = $1
	`
	var w entity.Webhook
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID, &w.EventType, &w.TargetURL, &w.Secret, &w.Active, &w.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", mapError(err))
	}
	return &w, nil
}

func (r *webhookRepository) ListActiveByEventType(ctx context.Context, eventType entity.EventType) ([]*entity.Webhook, error) {
	query := `
		SELECT id, event_type, target_url, secret, active, created_at
		FROM webhooks
		WHERE event_type = $1 AND active
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", mapError(err))
	}
	defer rows.Close()

	var webhooks []*entity.Webhook
	for rows.Next() {
		var w entity.Webhook
		if err := rows.Scan(&w.ID, &w.EventType, &w.TargetURL, &w.Secret, &w.Active, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhooks: %w", mapError(err))
	}
	return webhooks, nil
}

func (r *webhookRepository) LogDelivery(ctx context.Context, l *entity.WebhookDeliveryLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	query := `
		INSERT INTO webhook_delivery_logs (
			id, webhook_id, event_type, status, payload, error_message, attempt, response_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		l.ID,
		l.WebhookID,
		l.EventType,
		l.Status,
		l.Payload,
		nullString(l.ErrorMessage),
		l.Attempt,
		nullInt(l.ResponseCode),
	).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log webhook delivery: %w", mapError(err))
	}
	return nil
}

func (r *webhookRepository) ListDeliveries(ctx context.Context, webhookID string) ([]*entity.WebhookDeliveryLog, error) {
	query := `
		SELECT id, webhook_id, event_type, status, payload, error_message, attempt, response_code, created_at
		FROM webhook_delivery_logs
		WHERE webhook_id = $1
		ORDER BY created_at, attempt
	`
	rows, err := r.db.QueryContext(ctx, query, webhookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", mapError(err))
	}
	defer rows.Close()

	var logs []*entity.WebhookDeliveryLog
	for rows.Next() {
		var (
			l    entity.WebhookDeliveryLog
			msg  sql.NullString
			code sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.WebhookID, &l.EventType, &l.Status, &l.Payload, &msg, &l.Attempt, &code, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		l.ErrorMessage = msg.String
		l.ResponseCode = int(code.Int64)
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook deliveries: %w", mapError(err))
	}
	return logs, nil
}
