package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

const payoutColumns = `id, reference, subject_type, subject_id, requested_by,
	requested_amount, gross_amount, fees, net_amount, currency, provider, status,
	bank_name, account_number, account_name, bank_code,
	transaction_id, failure_reason, dispatch_claimed_at,
	created_at, processed_at, updated_at`

const activePayoutIndex = "payouts_one_active_per_subject"

type PayoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create inserts a payout. A second active payout for the same subject fails
// with domain.ErrDuplicateActiveRequest.
func (r *PayoutRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payout) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payouts (
			id, reference, subject_type, subject_id, requested_by,
			requested_amount, gross_amount, fees, net_amount, currency, provider, status,
			bank_name, account_number, account_name, bank_code,
			transaction_id, failure_reason, dispatch_claimed_at,
			created_at, processed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`,
		p.ID, p.Reference, p.SubjectType, p.SubjectID, p.RequestedBy,
		p.RequestedAmount, p.GrossAmount, p.Fees, p.NetAmount, p.Currency, p.Provider, p.Status,
		p.Bank.BankName, p.Bank.AccountNumber, p.Bank.AccountName, p.Bank.BankCode,
		p.TransactionID, p.FailureReason, p.DispatchClaimedAt,
		p.CreatedAt, p.ProcessedAt, p.UpdatedAt,
	)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok {
			if constraint == activePayoutIndex {
				return fmt.Errorf("Create: %w", domain.ErrDuplicateActiveRequest)
			}
			return fmt.Errorf("Create: %s: %w", constraint, domain.ErrDuplicateKey)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	return r.getOne(ctx, "GetByID", `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
}

func (r *PayoutRepository) GetByReference(ctx context.Context, reference string) (*domain.Payout, error) {
	return r.getOne(ctx, "GetByReference", `SELECT `+payoutColumns+` FROM payouts WHERE reference = $1`, reference)
}

func (r *PayoutRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payout, error) {
	return r.getOne(ctx, "GetByTransactionID",
		`SELECT `+payoutColumns+` FROM payouts WHERE transaction_id = $1
		ORDER BY created_at DESC LIMIT 1`, transactionID)
}

func (r *PayoutRepository) GetActiveBySubject(ctx context.Context, subjectType domain.SubjectType, subjectID uuid.UUID) (*domain.Payout, error) {
	return r.getOne(ctx, "GetActiveBySubject",
		`SELECT `+payoutColumns+` FROM payouts
		WHERE subject_type = $1 AND subject_id = $2 AND status IN ('pending', 'approved', 'processing')
		LIMIT 1`, subjectType, subjectID)
}

func (r *PayoutRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payout, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE`, id)
	p, err := scanPayout(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

func (r *PayoutRepository) getOne(ctx context.Context, op, query string, args ...any) (*domain.Payout, error) {
	p, err := scanPayout(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ClaimForDispatch marks an approved payout as taken by one processor. It
// returns false when the payout is not approved or another caller already
// holds the claim.
func (r *PayoutRepository) ClaimForDispatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET dispatch_claimed_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'approved' AND dispatch_claimed_at IS NULL`,
		at, id,
	)
	if err != nil {
		return false, fmt.Errorf("ClaimForDispatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ClaimForDispatch: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateStatus moves a payout from one status to another. It fails with
// domain.ErrStatusConflict when the stored status is no longer from.
func (r *PayoutRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.PayoutStatus, upd domain.StatusChange) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payouts SET
			status = $1,
			transaction_id = COALESCE($2, transaction_id),
			failure_reason = COALESCE($3, failure_reason),
			processed_at = COALESCE($4, processed_at),
			updated_at = now()
		WHERE id = $5 AND status = $6`,
		to, upd.TransactionID, upd.FailureReason, upd.ProcessedAt, id, from,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrStatusConflict)
	}
	return nil
}

// ListReconcilable returns active payouts that have reached a provider.
func (r *PayoutRepository) ListReconcilable(ctx context.Context, limit int) ([]domain.Payout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		WHERE status IN ('approved', 'processing') AND transaction_id IS NOT NULL
		ORDER BY updated_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListReconcilable: %w", err)
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("ListReconcilable: scan: %w", err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListReconcilable: rows: %w", err)
	}
	return payouts, nil
}

// ListStaleClaims returns approved payouts claimed for dispatch before
// claimedBefore that never recorded a transaction id.
func (r *PayoutRepository) ListStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]domain.Payout, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+payoutColumns+` FROM payouts
		WHERE status = 'approved' AND transaction_id IS NULL
			AND dispatch_claimed_at IS NOT NULL AND dispatch_claimed_at < $1
		ORDER BY dispatch_claimed_at LIMIT $2`,
		claimedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStaleClaims: %w", err)
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStaleClaims: scan: %w", err)
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStaleClaims: rows: %w", err)
	}
	return payouts, nil
}

// ReleaseClaim clears a dispatch claim taken before claimedBefore so the
// payout can be processed again. It returns false when the claim is gone,
// newer, or the payout has moved on.
func (r *PayoutRepository) ReleaseClaim(ctx context.Context, id uuid.UUID, claimedBefore time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET dispatch_claimed_at = NULL, updated_at = now()
		WHERE id = $1 AND status = 'approved' AND transaction_id IS NULL
			AND dispatch_claimed_at < $2`,
		id, claimedBefore,
	)
	if err != nil {
		return false, fmt.Errorf("ReleaseClaim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ReleaseClaim: rows affected: %w", err)
	}
	return n == 1, nil
}

func scanPayout(s scanner) (*domain.Payout, error) {
	var p domain.Payout
	err := s.Scan(
		&p.ID, &p.Reference, &p.SubjectType, &p.SubjectID, &p.RequestedBy,
		&p.RequestedAmount, &p.GrossAmount, &p.Fees, &p.NetAmount, &p.Currency, &p.Provider, &p.Status,
		&p.Bank.BankName, &p.Bank.AccountNumber, &p.Bank.AccountName, &p.Bank.BankCode,
		&p.TransactionID, &p.FailureReason, &p.DispatchClaimedAt,
		&p.CreatedAt, &p.ProcessedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
