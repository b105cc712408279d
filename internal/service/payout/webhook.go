package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
)

var eventTargets = map[provider.EventKind]domain.PayoutStatus{
	provider.EventTransferCreated:   domain.PayoutStatusProcessing,
	provider.EventTransferSucceeded: domain.PayoutStatusCompleted,
	provider.EventTransferFailed:    domain.PayoutStatusFailed,
	provider.EventTransferReversed:  domain.PayoutStatusFailed,
}

// ApplyProviderEvent moves the payout an event refers to. Unknown kinds and
// events for payouts of another provider come back with Ignored set.
// domain.ErrNotFound means no payout matches; domain.ErrInvalidTransition
// means the event arrived ahead of the payout and may apply later.
func (s *Service) ApplyProviderEvent(ctx context.Context, from domain.Provider, ev provider.Event) (Outcome, error) {
	log := logging.FromContext(ctx).With("provider", from, "event_id", ev.EventID, "event_type", ev.RawType)

	target, ok := eventTargets[ev.Kind]
	if !ok {
		log.Warn("ignoring unhandled provider event")
		return Outcome{Ignored: true}, nil
	}

	p, err := s.resolve(ctx, ev)
	if err != nil {
		log.Warn("no payout matches provider event",
			"reference", ev.Reference,
			"transaction_id", ev.TransactionID,
		)
		return Outcome{}, fmt.Errorf("ApplyProviderEvent: %w", err)
	}

	ctx, log = logging.WithPayout(ctx, p.ID, p.Reference)
	log = log.With("provider", from, "event_id", ev.EventID, "event_type", ev.RawType)

	if p.Provider != from {
		log.Warn("provider event for payout of another provider", "payout_provider", p.Provider)
		return Outcome{Payout: p, Ignored: true}, nil
	}

	reason := ev.Reason
	if reason == "" {
		reason = ev.RawType
	}

	out, err := s.apply(ctx, p.ID, change{
		to:            target,
		actor:         domain.WebhookActor(from),
		reason:        reason,
		transactionID: ev.TransactionID,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("ApplyProviderEvent: %w", err)
	}
	if !out.Changed {
		log.Info("provider event did not change payout", "status", out.Payout.Status, "target", target)
	}
	return out, nil
}

// resolve finds the payout by metadata id, then reference, then transaction id.
func (s *Service) resolve(ctx context.Context, ev provider.Event) (*domain.Payout, error) {
	if ev.PayoutID != "" {
		if id, err := uuid.Parse(ev.PayoutID); err == nil {
			p, err := s.payouts.GetByID(ctx, id)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
		}
	}
	if ev.Reference != "" {
		p, err := s.payouts.GetByReference(ctx, ev.Reference)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.TransactionID != "" {
		p, err := s.payouts.GetByTransactionID(ctx, ev.TransactionID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}
