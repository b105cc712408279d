package payout

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

type RequestInput struct {
	RequesterID uuid.UUID
	SubjectType domain.SubjectType
	SubjectID   uuid.UUID
	Amount      int64
	// Currency is free-form; empty means the subject's currency.
	Currency string
	// Provider is optional; when set it must match the currency's route.
	Provider domain.Provider
}

type RequestResult struct {
	Payout            *domain.Payout
	NetAmount         int64
	Fees              int64
	EstimatedDelivery string
}

// RequestPayout validates and records a new pending payout. At most one
// active payout exists per subject; the loser of a concurrent race gets a
// *domain.DuplicateActiveRequestError just like a sequential duplicate.
func (s *Service) RequestPayout(ctx context.Context, in RequestInput) (*RequestResult, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("RequestPayout: %w", domain.ErrInvalidAmount)
	}
	if !in.SubjectType.IsValid() {
		return nil, fmt.Errorf("RequestPayout: subject type %q: %w", in.SubjectType, domain.ErrInvalidRequest)
	}

	log := logging.FromContext(ctx).With("subject_type", in.SubjectType, "subject_id", in.SubjectID)

	subject, err := s.subjects.Get(ctx, in.SubjectType, in.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("RequestPayout: %w", err)
	}

	if subject.OwnerID != in.RequesterID {
		log.Warn("payout request by non-owner", "requester_id", in.RequesterID)
		return nil, fmt.Errorf("RequestPayout: %w", domain.ErrForbidden)
	}

	if err := s.ensureNoActive(ctx, in.SubjectType, in.SubjectID); err != nil {
		return nil, fmt.Errorf("RequestPayout: %w", err)
	}

	available := subject.Available()
	if available <= 0 || in.Amount > available {
		return nil, fmt.Errorf("RequestPayout: requested %d, available %d: %w", in.Amount, available, domain.ErrInsufficientFunds)
	}

	currency := subject.Currency
	if strings.TrimSpace(in.Currency) != "" {
		currency = s.rates.CurrencyCode(ctx, in.Currency)
	}
	if currency != subject.Currency {
		return nil, fmt.Errorf("RequestPayout: %s vs subject %s: %w", currency, subject.Currency, domain.ErrCurrencyMismatch)
	}

	inReference, err := s.rates.ConvertToReference(in.Amount, currency)
	if err != nil {
		return nil, fmt.Errorf("RequestPayout: %w", err)
	}
	if inReference < s.cfg.MinPayoutReference {
		return nil, fmt.Errorf("RequestPayout: %d below %d: %w", inReference, s.cfg.MinPayoutReference, domain.ErrBelowMinimum)
	}

	routed := s.router.ProviderFor(currency)
	if in.Provider != "" && in.Provider != routed {
		return nil, fmt.Errorf("RequestPayout: %s serves %s, not %s: %w", routed, currency, in.Provider, domain.ErrWrongProviderForCurrency)
	}
	adapter, err := s.router.Adapter(routed)
	if err != nil {
		return nil, fmt.Errorf("RequestPayout: %w", err)
	}

	if !subject.Bank.IsComplete() {
		return nil, fmt.Errorf("RequestPayout: incomplete bank details: %w", domain.ErrRecipientNotVerified)
	}
	if adapter.RequiresVerifiedAccount() && !subject.AccountVerified {
		return nil, fmt.Errorf("RequestPayout: %w", domain.ErrRecipientNotVerified)
	}

	breakdown, err := s.fees.Calculate(in.Amount, currency, routed)
	if err != nil {
		return nil, fmt.Errorf("RequestPayout: %w", err)
	}

	now := s.now()
	p := &domain.Payout{
		ID:              uuid.New(),
		Reference:       newReference(now.Format("20060102150405"), in.SubjectID),
		SubjectType:     in.SubjectType,
		SubjectID:       in.SubjectID,
		RequestedBy:     in.RequesterID,
		RequestedAmount: in.Amount,
		GrossAmount:     breakdown.Gross,
		Fees:            breakdown.Fees,
		NetAmount:       breakdown.Net,
		Currency:        currency,
		Provider:        routed,
		Status:          domain.PayoutStatusPending,
		Bank:            subject.Bank,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.payouts.Create(ctx, tx, p); err != nil {
			return err
		}
		return s.audit.Create(ctx, tx, &domain.AuditEntry{
			ID:        uuid.New(),
			PayoutID:  p.ID,
			NewStatus: domain.PayoutStatusPending,
			Actor:     domain.ActorRequester,
			Reason:    "payout requested",
			CreatedAt: now,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateActiveRequest) {
			log.Info("concurrent payout request lost the race")
			return nil, fmt.Errorf("RequestPayout: %w", s.duplicateError(ctx, in.SubjectType, in.SubjectID))
		}
		return nil, fmt.Errorf("RequestPayout: %w", err)
	}

	_, plog := logging.WithPayout(ctx, p.ID, p.Reference)
	plog.Info("payout requested",
		"amount", p.GrossAmount,
		"fees", p.Fees,
		"net_amount", p.NetAmount,
		"currency", p.Currency,
		"provider", p.Provider,
	)

	return &RequestResult{
		Payout:            p,
		NetAmount:         p.NetAmount,
		Fees:              p.Fees,
		EstimatedDelivery: adapter.EstimatedDelivery(),
	}, nil
}

func (s *Service) ensureNoActive(ctx context.Context, subjectType domain.SubjectType, subjectID uuid.UUID) error {
	existing, err := s.payouts.GetActiveBySubject(ctx, subjectType, subjectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	return &domain.DuplicateActiveRequestError{Existing: existing.Summary()}
}

func (s *Service) duplicateError(ctx context.Context, subjectType domain.SubjectType, subjectID uuid.UUID) error {
	existing, err := s.payouts.GetActiveBySubject(ctx, subjectType, subjectID)
	if err != nil {
		return domain.ErrDuplicateActiveRequest
	}
	return &domain.DuplicateActiveRequestError{Existing: existing.Summary()}
}

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newReference builds PO-<UTC timestamp>-<subject prefix>-<random>.
func newReference(timestamp string, subjectID uuid.UUID) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	prefix := strings.ToUpper(strings.ReplaceAll(subjectID.String(), "-", "")[:8])
	return fmt.Sprintf("PO-%s-%s-%s", timestamp, prefix, buf)
}
