package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
)

const reasonNoTransactionID = "transfer acknowledged but no transaction id"

// Process dispatches an approved payout to its provider. A successful
// dispatch leaves the payout processing; only a webhook or reconciliation
// completes it. Payouts that already left approved are returned unchanged.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (Outcome, error) {
	p, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("Process: %w", err)
	}

	ctx, log := logging.WithPayout(ctx, p.ID, p.Reference)

	switch p.Status {
	case domain.PayoutStatusPending:
		return Outcome{}, fmt.Errorf("Process: %w", domain.ErrNotApproved)
	case domain.PayoutStatusProcessing, domain.PayoutStatusCompleted, domain.PayoutStatusFailed:
		log.Info("payout already dispatched, nothing to do", "status", p.Status)
		return Outcome{Payout: p}, nil
	}

	if p.DispatchClaimedAt != nil {
		return Outcome{}, fmt.Errorf("Process: %w", domain.ErrAlreadyProcessing)
	}
	claimed, err := s.payouts.ClaimForDispatch(ctx, p.ID, s.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("Process: %w", err)
	}
	if !claimed {
		current, err := s.payouts.GetByID(ctx, p.ID)
		if err == nil && current.Status != domain.PayoutStatusApproved {
			return Outcome{Payout: current}, nil
		}
		return Outcome{}, fmt.Errorf("Process: %w", domain.ErrAlreadyProcessing)
	}

	log.Info("payout claimed for dispatch", "provider", p.Provider, "net_amount", p.NetAmount, "currency", p.Currency)

	res, dispatchErr := s.dispatch(ctx, p)

	// The transfer may have left; its result is recorded even if the caller
	// has gone away.
	persistCtx := context.WithoutCancel(ctx)

	if dispatchErr != nil {
		log.Error("payout dispatch failed", "error", dispatchErr)
		return s.fail(persistCtx, p.ID, dispatchErr.Error())
	}

	switch res.Status {
	case provider.StatusFailed, provider.StatusReversed:
		reason := res.FailureReason
		if reason == "" {
			reason = fmt.Sprintf("provider reported %s", res.Status)
		}
		log.Warn("provider rejected transfer", "provider_status", res.RawStatus, "reason", reason)
		return s.fail(persistCtx, p.ID, reason)
	}

	if res.TransactionID == "" {
		log.Error("provider acknowledged transfer without transaction id", "provider_status", res.RawStatus)
		return s.fail(persistCtx, p.ID, reasonNoTransactionID)
	}

	out, err := s.recordDispatch(persistCtx, p, res)
	if err != nil {
		// The provider holds the transfer; the payout keeps its claim and
		// reconciliation finds the transfer by reference.
		log.Error("transfer accepted but not recorded",
			"transaction_id", res.TransactionID,
			"provider_status", res.RawStatus,
			"error", err,
		)
		return Outcome{}, fmt.Errorf("Process: %w", err)
	}
	log.Info("payout dispatched", "transaction_id", res.TransactionID, "provider_status", res.RawStatus)
	return out, nil
}

const recordAttempts = 3

// recordDispatch moves a payout the provider accepted to processing,
// retrying writes that may succeed on a later attempt.
func (s *Service) recordDispatch(ctx context.Context, p *domain.Payout, res provider.TransferResult) (Outcome, error) {
	c := change{
		to:            domain.PayoutStatusProcessing,
		actor:         domain.ActorProcessor,
		reason:        fmt.Sprintf("dispatched to %s (%s)", p.Provider, res.RawStatus),
		transactionID: res.TransactionID,
	}

	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		var out Outcome
		out, err = s.apply(ctx, p.ID, c)
		if err == nil || errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
			return out, err
		}
		if attempt < recordAttempts {
			logging.FromContext(ctx).Warn("recording dispatch failed, retrying", "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * s.persistBackoff)
		}
	}
	return Outcome{}, err
}

func (s *Service) dispatch(ctx context.Context, p *domain.Payout) (provider.TransferResult, error) {
	adapter, err := s.router.Adapter(p.Provider)
	if err != nil {
		return provider.TransferResult{}, err
	}

	recipient, err := s.recipientFor(ctx, adapter, p)
	if err != nil {
		return provider.TransferResult{}, err
	}

	return adapter.InitiateTransfer(ctx, provider.TransferRequest{
		Amount:    p.NetAmount,
		Recipient: recipient,
		Reason:    "Payout " + p.Reference,
		Currency:  p.Currency,
		Reference: p.Reference,
		PayoutID:  p.ID.String(),
	})
}

// recipientFor returns the provider handle for the payout's bank snapshot,
// registering it with the provider the first time it is seen.
func (s *Service) recipientFor(ctx context.Context, adapter provider.Adapter, p *domain.Payout) (string, error) {
	log := logging.FromContext(ctx)
	fingerprint := domain.RecipientFingerprint(adapter.Name(), p.Bank, p.Currency)

	cached, err := s.recipients.Get(ctx, adapter.Name(), fingerprint)
	if err == nil {
		return cached.RecipientCode, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		log.Warn("recipient cache lookup failed", "error", err)
	}

	code, err := adapter.CreateRecipient(ctx, provider.RecipientRequest{
		AccountName:   p.Bank.AccountName,
		AccountNumber: p.Bank.AccountNumber,
		BankCode:      p.Bank.BankCode,
		BankName:      p.Bank.BankName,
		Currency:      p.Currency,
	})
	if err != nil {
		if !errors.Is(err, provider.ErrRecipientAlreadyExists) || code == "" {
			return "", err
		}
		log.Info("recipient already registered with provider, reusing handle")
	}

	if err := s.recipients.Save(ctx, &domain.ProviderRecipient{
		Provider:      adapter.Name(),
		Fingerprint:   fingerprint,
		RecipientCode: code,
		Currency:      p.Currency,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Warn("failed to cache recipient", "error", err)
	}
	return code, nil
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, reason string) (Outcome, error) {
	out, err := s.apply(ctx, id, change{
		to:     domain.PayoutStatusFailed,
		actor:  domain.ActorProcessor,
		reason: reason,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("Process: %w", err)
	}
	return out, nil
}
