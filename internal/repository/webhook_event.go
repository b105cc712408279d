package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

const webhookEventColumns = `id, provider, idempotency_key, event_type, payload, status,
	attempts, last_error, last_attempt, created_at`

type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Create stores a delivery. A redelivery of the same provider event fails
// with domain.ErrDuplicateKey.
func (r *WebhookEventRepository) Create(ctx context.Context, event *domain.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (
			id, provider, idempotency_key, event_type, payload, status, attempts, last_error, last_attempt, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.Provider, event.IdempotencyKey, event.EventType, []byte(event.Payload),
		event.Status, event.Attempts, event.LastError, event.LastAttempt, event.CreatedAt,
	)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateKey)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ClaimPending hands out pending events older than minAge, stamping
// last_attempt so concurrent pollers skip them for the next minAge.
func (r *WebhookEventRepository) ClaimPending(ctx context.Context, minAge time.Duration, limit int) ([]domain.WebhookEvent, error) {
	cutoff := time.Now().UTC().Add(-minAge)
	rows, err := r.db.QueryContext(ctx,
		`UPDATE webhook_events SET last_attempt = now()
		WHERE id IN (
			SELECT id FROM webhook_events
			WHERE status = $1 AND created_at < $2 AND (last_attempt IS NULL OR last_attempt < $2)
			ORDER BY created_at LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+webhookEventColumns,
		domain.WebhookEventStatusPending, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return events, nil
}

// RecordAttempt stores the outcome of one application attempt.
func (r *WebhookEventRepository) RecordAttempt(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, lastErr *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_events SET status = $1, attempts = attempts + 1, last_error = $2, last_attempt = now()
		WHERE id = $3`,
		status, lastErr, id,
	)
	if err != nil {
		return fmt.Errorf("RecordAttempt: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RecordAttempt: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("RecordAttempt: %w", domain.ErrNotFound)
	}
	return nil
}

func scanWebhookEvent(s scanner) (*domain.WebhookEvent, error) {
	var e domain.WebhookEvent
	var payload []byte
	err := s.Scan(
		&e.ID, &e.Provider, &e.IdempotencyKey, &e.EventType, &payload,
		&e.Status, &e.Attempts, &e.LastError, &e.LastAttempt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}
