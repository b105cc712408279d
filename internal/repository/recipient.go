package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

type RecipientRepository struct {
	db *sql.DB
}

func NewRecipientRepository(db *sql.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) Get(ctx context.Context, provider domain.Provider, fingerprint string) (*domain.ProviderRecipient, error) {
	var rec domain.ProviderRecipient
	err := r.db.QueryRowContext(ctx,
		`SELECT provider, fingerprint, recipient_code, currency, created_at
		FROM provider_recipients WHERE provider = $1 AND fingerprint = $2`,
		provider, fingerprint,
	).Scan(&rec.Provider, &rec.Fingerprint, &rec.RecipientCode, &rec.Currency, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &rec, nil
}

// Save keeps the first recipient code stored for a fingerprint.
func (r *RecipientRepository) Save(ctx context.Context, rec *domain.ProviderRecipient) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO provider_recipients (provider, fingerprint, recipient_code, currency, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, fingerprint) DO NOTHING`,
		rec.Provider, rec.Fingerprint, rec.RecipientCode, rec.Currency, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}
