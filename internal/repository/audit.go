package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.AuditEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payout_audit_entries (id, payout_id, old_status, new_status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.PayoutID, entry.OldStatus, entry.NewStatus, entry.Actor, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByPayout(ctx context.Context, payoutID uuid.UUID) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payout_id, old_status, new_status, actor, reason, created_at
		FROM payout_audit_entries WHERE payout_id = $1 ORDER BY created_at, id`,
		payoutID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPayout: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.PayoutID, &e.OldStatus, &e.NewStatus, &e.Actor, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByPayout: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByPayout: rows: %w", err)
	}
	return entries, nil
}
