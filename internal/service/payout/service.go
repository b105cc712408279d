// Package payout owns the payout lifecycle: requests, approval, dispatch to a
// provider, webhook application and reconciliation. Every status change goes
// through domain.Transition and is written together with its audit entry.
package payout

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/fees"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
)

type payoutRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	GetByReference(ctx context.Context, reference string) (*domain.Payout, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payout, error)
	GetActiveBySubject(ctx context.Context, subjectType domain.SubjectType, subjectID uuid.UUID) (*domain.Payout, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payout, error)
	ClaimForDispatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to domain.PayoutStatus, change domain.StatusChange) error
	ListReconcilable(ctx context.Context, limit int) ([]domain.Payout, error)
	ListStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]domain.Payout, error)
	ReleaseClaim(ctx context.Context, id uuid.UUID, claimedBefore time.Time) (bool, error)
}

type auditRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.AuditEntry) error
	ListByPayout(ctx context.Context, payoutID uuid.UUID) ([]domain.AuditEntry, error)
}

type subjectRepo interface {
	Get(ctx context.Context, subjectType domain.SubjectType, id uuid.UUID) (*domain.Subject, error)
}

type recipientRepo interface {
	Get(ctx context.Context, p domain.Provider, fingerprint string) (*domain.ProviderRecipient, error)
	Save(ctx context.Context, rec *domain.ProviderRecipient) error
}

type transactor interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type adapterRouter interface {
	ProviderFor(c domain.Currency) domain.Provider
	Adapter(name domain.Provider) (provider.Adapter, error)
}

type feeCalculator interface {
	Calculate(amount int64, currency domain.Currency, p domain.Provider) (fees.Breakdown, error)
}

type rateTable interface {
	ConvertToReference(amount int64, from domain.Currency) (int64, error)
	CurrencyCode(ctx context.Context, raw string) domain.Currency
}

type Config struct {
	// MinPayoutReference is the smallest payout, in minor units of the
	// reference currency. Zero disables the check.
	MinPayoutReference int64
	ReconcileBatchSize int
	// StaleClaimAfter is how long a dispatch claim may sit without a
	// transaction id before reconciliation looks the transfer up.
	StaleClaimAfter time.Duration
}

type Service struct {
	payouts    payoutRepo
	audit      auditRepo
	subjects   subjectRepo
	recipients recipientRepo
	tx         transactor
	router     adapterRouter
	fees       feeCalculator
	rates      rateTable
	cfg        Config
	now        func() time.Time
	// persistBackoff spaces retries of a write that records an accepted
	// transfer.
	persistBackoff time.Duration
}

func NewService(
	payouts payoutRepo,
	audit auditRepo,
	subjects subjectRepo,
	recipients recipientRepo,
	tx transactor,
	router adapterRouter,
	feeCalc feeCalculator,
	rates rateTable,
	cfg Config,
) *Service {
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = 500
	}
	if cfg.StaleClaimAfter <= 0 {
		cfg.StaleClaimAfter = 15 * time.Minute
	}
	return &Service{
		payouts:    payouts,
		audit:      audit,
		subjects:   subjects,
		recipients: recipients,
		tx:         tx,
		router:     router,
		fees:       feeCalc,
		rates:      rates,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },

		persistBackoff: 200 * time.Millisecond,
	}
}

// Outcome is the result of an operation that may move a payout. Changed is
// false when the operation was a no-op. Notifications must be delivered by
// the caller after the operation returns.
type Outcome struct {
	Payout        *domain.Payout
	Changed       bool
	Ignored       bool
	Notifications []domain.Notification
}

// GetPayout returns a payout to its requester or to an admin. Anyone else
// gets domain.ErrNotFound.
func (s *Service) GetPayout(ctx context.Context, id, requesterID uuid.UUID, isAdmin bool) (*domain.Payout, error) {
	p, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayout: %w", err)
	}
	if !isAdmin && p.RequestedBy != requesterID {
		return nil, fmt.Errorf("GetPayout: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID) ([]domain.AuditEntry, error) {
	if _, err := s.payouts.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("AuditTrail: %w", err)
	}
	entries, err := s.audit.ListByPayout(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("AuditTrail: %w", err)
	}
	return entries, nil
}
