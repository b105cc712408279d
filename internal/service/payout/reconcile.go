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

type ItemError struct {
	PayoutID  uuid.UUID `json:"payout_id"`
	Reference string    `json:"reference"`
	Error     string    `json:"error"`
}

type Summary struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
	// Released counts stale dispatch claims cleared because the provider
	// never received the transfer.
	Released      int                   `json:"released"`
	Errors        []ItemError           `json:"errors"`
	Notifications []domain.Notification `json:"-"`
}

var reconcileTargets = map[provider.Status]domain.PayoutStatus{
	provider.StatusSuccess:          domain.PayoutStatusCompleted,
	provider.StatusFailed:           domain.PayoutStatusFailed,
	provider.StatusReversed:         domain.PayoutStatusFailed,
	provider.StatusPending:          domain.PayoutStatusProcessing,
	provider.StatusRequiresApproval: domain.PayoutStatusProcessing,
}

// ReconcileAll asks each provider for the status of every in-flight payout
// and applies what differs. Approved payouts whose dispatch claim went stale
// are looked up by reference first. One payout failing never stops the run.
func (s *Service) ReconcileAll(ctx context.Context) (Summary, error) {
	log := logging.FromContext(ctx)

	summary := Summary{Errors: []ItemError{}}
	if err := s.recoverStaleClaims(ctx, &summary); err != nil {
		return summary, fmt.Errorf("ReconcileAll: %w", err)
	}

	payouts, err := s.payouts.ListReconcilable(ctx, s.cfg.ReconcileBatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("ReconcileAll: %w", err)
	}

	summary.Total += len(payouts)
	for i := range payouts {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("ReconcileAll: %w", err)
		}

		p := &payouts[i]
		out, err := s.reconcileOne(ctx, p)
		if err != nil {
			log.Warn("reconciliation failed for payout", "payout_id", p.ID, "error", err)
			summary.Errors = append(summary.Errors, ItemError{PayoutID: p.ID, Reference: p.Reference, Error: err.Error()})
			continue
		}
		if out.Changed {
			summary.Updated++
			summary.Notifications = append(summary.Notifications, out.Notifications...)
		}
	}

	log.Info("reconciliation finished",
		"total", summary.Total,
		"updated", summary.Updated,
		"released", summary.Released,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

func (s *Service) reconcileOne(ctx context.Context, p *domain.Payout) (Outcome, error) {
	ctx, log := logging.WithPayout(ctx, p.ID, p.Reference)

	if p.TransactionID == nil || *p.TransactionID == "" {
		return Outcome{Payout: p}, nil
	}

	adapter, err := s.router.Adapter(p.Provider)
	if err != nil {
		return Outcome{}, err
	}
	res, err := adapter.VerifyTransfer(ctx, *p.TransactionID)
	if err != nil {
		return Outcome{}, err
	}

	target, ok := reconcileTargets[res.Status]
	reason := fmt.Sprintf("provider status %s", res.RawStatus)
	if !ok {
		log.Error("unrecognized provider status, failing payout", "provider_status", res.RawStatus)
		target = domain.PayoutStatusFailed
		reason = fmt.Sprintf("unrecognized provider status %q", res.RawStatus)
	} else if target == domain.PayoutStatusFailed && res.FailureReason != "" {
		reason = res.FailureReason
	}

	if target == p.Status {
		return Outcome{Payout: p}, nil
	}

	return s.apply(ctx, p.ID, change{
		to:            target,
		actor:         domain.ActorReconciliation,
		reason:        reason,
		transactionID: res.TransactionID,
	})
}

func (s *Service) recoverStaleClaims(ctx context.Context, summary *Summary) error {
	cutoff := s.now().Add(-s.cfg.StaleClaimAfter)
	stale, err := s.payouts.ListStaleClaims(ctx, cutoff, s.cfg.ReconcileBatchSize)
	if err != nil {
		return err
	}

	summary.Total += len(stale)
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return err
		}

		p := &stale[i]
		out, released, err := s.recoverClaim(ctx, p, cutoff)
		if err != nil {
			logging.FromContext(ctx).Warn("stale claim recovery failed", "payout_id", p.ID, "error", err)
			summary.Errors = append(summary.Errors, ItemError{PayoutID: p.ID, Reference: p.Reference, Error: err.Error()})
			continue
		}
		if released {
			summary.Released++
		}
		if out.Changed {
			summary.Updated++
			summary.Notifications = append(summary.Notifications, out.Notifications...)
		}
	}
	return nil
}

// recoverClaim settles an approved payout whose dispatch never recorded a
// transaction id. A transfer the provider knows is recorded; otherwise the
// claim is released so the payout can be processed again.
func (s *Service) recoverClaim(ctx context.Context, p *domain.Payout, cutoff time.Time) (Outcome, bool, error) {
	ctx, log := logging.WithPayout(ctx, p.ID, p.Reference)

	adapter, err := s.router.Adapter(p.Provider)
	if err != nil {
		return Outcome{}, false, err
	}

	res, err := adapter.LookupTransfer(ctx, p.Reference)
	if errors.Is(err, provider.ErrTransferNotFound) {
		released, err := s.payouts.ReleaseClaim(ctx, p.ID, cutoff)
		if err != nil {
			return Outcome{}, false, err
		}
		if released {
			log.Warn("released stale dispatch claim, provider has no transfer", "claimed_at", p.DispatchClaimedAt)
		}
		return Outcome{Payout: p}, released, nil
	}
	if err != nil {
		return Outcome{}, false, err
	}
	if res.TransactionID == "" {
		return Outcome{}, false, fmt.Errorf("lookup of %s returned no transaction id", p.Reference)
	}

	c := change{
		to:            domain.PayoutStatusProcessing,
		actor:         domain.ActorReconciliation,
		reason:        fmt.Sprintf("recovered stale dispatch (%s)", res.RawStatus),
		transactionID: res.TransactionID,
	}
	if res.Status == provider.StatusFailed || res.Status == provider.StatusReversed {
		c.to = domain.PayoutStatusFailed
		c.reason = res.FailureReason
		if c.reason == "" {
			c.reason = fmt.Sprintf("provider status %s", res.RawStatus)
		}
	}

	log.Info("stale dispatch found at provider", "transaction_id", res.TransactionID, "provider_status", res.RawStatus)
	out, err := s.apply(ctx, p.ID, c)
	if err != nil {
		return Outcome{}, false, err
	}
	return out, false, nil
}
