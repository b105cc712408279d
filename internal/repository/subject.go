package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

// SubjectRepository reads campaigns and ambassador commission balances
// together with what has already been paid out for them.
type SubjectRepository struct {
	db *sql.DB
}

func NewSubjectRepository(db *sql.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

const campaignSubjectQuery = `
	SELECT c.id, c.owner_id, u.email, u.name, c.title, c.currency, c.raised_amount,
		COALESCE((SELECT SUM(p.gross_amount) FROM payouts p
			WHERE p.subject_type = 'campaign' AND p.subject_id = c.id AND p.status = 'completed'), 0),
		c.bank_name, c.account_number, c.account_name, c.bank_code, c.account_verified
	FROM campaigns c JOIN users u ON u.id = c.owner_id
	WHERE c.id = $1`

const commissionSubjectQuery = `
	SELECT a.id, a.user_id, u.email, u.name, 'Ambassador commission', a.currency, a.earned_commission,
		COALESCE((SELECT SUM(p.gross_amount) FROM payouts p
			WHERE p.subject_type = 'commission' AND p.subject_id = a.id AND p.status = 'completed'), 0),
		a.bank_name, a.account_number, a.account_name, a.bank_code, a.account_verified
	FROM ambassadors a JOIN users u ON u.id = a.user_id
	WHERE a.id = $1`

func (r *SubjectRepository) Get(ctx context.Context, subjectType domain.SubjectType, id uuid.UUID) (*domain.Subject, error) {
	var query string
	switch subjectType {
	case domain.SubjectTypeCampaign:
		query = campaignSubjectQuery
	case domain.SubjectTypeCommission:
		query = commissionSubjectQuery
	default:
		return nil, fmt.Errorf("Get: subject type %q: %w", subjectType, domain.ErrInvalidRequest)
	}

	s := domain.Subject{Type: subjectType}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.OwnerID, &s.OwnerEmail, &s.OwnerName, &s.Title, &s.Currency, &s.RaisedAmount,
		&s.DisbursedAmount,
		&s.Bank.BankName, &s.Bank.AccountNumber, &s.Bank.AccountName, &s.Bank.BankCode, &s.AccountVerified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return &s, nil
}
