package payout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

// withPayoutID tags ctx for operations that start from an id alone.
func withPayoutID(ctx context.Context, id uuid.UUID) (context.Context, *slog.Logger) {
	l := logging.FromContext(ctx).With("payout_id", id)
	return logging.WithLogger(ctx, l), l
}

// Approve moves a pending payout to approved. Approving an already approved
// or later payout is a no-op.
func (s *Service) Approve(ctx context.Context, id, adminID uuid.UUID) (Outcome, error) {
	ctx, log := withPayoutID(ctx, id)
	log.Info("approving payout", "admin_id", adminID)

	out, err := s.apply(ctx, id, change{
		to:     domain.PayoutStatusApproved,
		actor:  domain.ActorAdmin,
		reason: "approved by " + adminID.String(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("Approve: %w", err)
	}
	return out, nil
}

// Reject fails a payout that nothing has been sent for: a pending payout, or
// an approved one whose dispatch claim is not held. Rejecting releases the
// subject for a new request.
func (s *Service) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Outcome{}, fmt.Errorf("Reject: reason required: %w", domain.ErrInvalidRequest)
	}

	ctx, log := withPayoutID(ctx, id)
	log.Info("rejecting payout", "admin_id", adminID)

	out, err := s.apply(ctx, id, change{
		to:     domain.PayoutStatusFailed,
		actor:  domain.ActorAdmin,
		reason: "rejected: " + reason,
		guard:  rejectable,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("Reject: %w", err)
	}
	return out, nil
}

func rejectable(p *domain.Payout) error {
	switch {
	case p.Status == domain.PayoutStatusPending:
		return nil
	case p.Status == domain.PayoutStatusApproved && p.DispatchClaimedAt == nil && p.TransactionID == nil:
		return nil
	case p.Status == domain.PayoutStatusApproved:
		return fmt.Errorf("payout %s has a dispatch in flight: %w", p.ID, domain.ErrAlreadyProcessing)
	default:
		return fmt.Errorf("%s -> %s: %w", p.Status, domain.PayoutStatusFailed, domain.ErrInvalidTransition)
	}
}
