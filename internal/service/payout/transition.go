package payout

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

type change struct {
	to            domain.PayoutStatus
	actor         domain.Actor
	reason        string
	transactionID string
	// guard, when set, vetoes an otherwise valid move of the locked payout.
	guard func(p *domain.Payout) error
}

// transition locks the payout, asks domain.Transition whether the move
// applies and, if so, writes the new status and its audit entry atomically.
func (s *Service) transition(ctx context.Context, id uuid.UUID, c change) (*domain.Payout, bool, error) {
	var (
		result  *domain.Payout
		applied bool
	)

	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := s.payouts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		result = p

		outcome := domain.Transition(p.Status, c.to)
		if outcome == domain.TransitionApply && c.guard != nil {
			if err := c.guard(p); err != nil {
				return err
			}
		}

		switch outcome {
		case domain.TransitionNoop:
			return nil
		case domain.TransitionInvalid:
			return fmt.Errorf("%s -> %s: %w", p.Status, c.to, domain.ErrInvalidTransition)
		}

		now := s.now()
		upd := domain.StatusChange{}
		if c.transactionID != "" && p.TransactionID == nil {
			txID := c.transactionID
			upd.TransactionID = &txID
		}
		if c.to == domain.PayoutStatusProcessing && p.TransactionID == nil && upd.TransactionID == nil {
			return fmt.Errorf("%s -> %s without transaction id: %w", p.Status, c.to, domain.ErrInvalidTransition)
		}
		if c.to == domain.PayoutStatusFailed {
			reason := c.reason
			if reason == "" {
				reason = "payout failed"
			}
			upd.FailureReason = &reason
		}
		if c.to == domain.PayoutStatusCompleted {
			upd.ProcessedAt = &now
		}

		if err := s.payouts.UpdateStatus(ctx, tx, p.ID, p.Status, c.to, upd); err != nil {
			return err
		}

		entry := &domain.AuditEntry{
			ID:        uuid.New(),
			PayoutID:  p.ID,
			OldStatus: p.Status,
			NewStatus: c.to,
			Actor:     c.actor,
			Reason:    c.reason,
			CreatedAt: now,
		}
		if err := s.audit.Create(ctx, tx, entry); err != nil {
			return err
		}

		p.Status = c.to
		p.UpdatedAt = now
		if upd.TransactionID != nil {
			p.TransactionID = upd.TransactionID
		}
		if upd.FailureReason != nil {
			p.FailureReason = upd.FailureReason
		}
		if upd.ProcessedAt != nil {
			p.ProcessedAt = upd.ProcessedAt
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("transition: %w", err)
	}

	if applied {
		logging.FromContext(ctx).Info("payout status changed",
			"new_status", c.to,
			"actor", c.actor,
		)
	}
	return result, applied, nil
}

// apply runs a transition and builds the notification it implies.
func (s *Service) apply(ctx context.Context, id uuid.UUID, c change) (Outcome, error) {
	p, applied, err := s.transition(ctx, id, c)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Payout: p, Changed: applied}
	if applied {
		if n, ok := s.notificationFor(ctx, p); ok {
			out.Notifications = append(out.Notifications, n)
		}
	}
	return out, nil
}

func (s *Service) notificationFor(ctx context.Context, p *domain.Payout) (domain.Notification, bool) {
	var kind domain.NotificationKind
	switch p.Status {
	case domain.PayoutStatusApproved:
		kind = domain.NotificationApproval
	case domain.PayoutStatusCompleted:
		kind = domain.NotificationCompletion
	case domain.PayoutStatusFailed:
		kind = domain.NotificationFailure
	default:
		return domain.Notification{}, false
	}

	subject, err := s.subjects.Get(ctx, p.SubjectType, p.SubjectID)
	if err != nil {
		logging.FromContext(ctx).Warn("notification skipped, subject lookup failed",
			"payout_id", p.ID,
			"kind", kind,
			"error", err,
		)
		return domain.Notification{}, false
	}

	n := domain.Notification{
		Kind:         kind,
		PayoutID:     p.ID,
		Reference:    p.Reference,
		UserEmail:    subject.OwnerEmail,
		UserName:     subject.OwnerName,
		SubjectTitle: subject.Title,
		Amount:       p.GrossAmount,
		Currency:     p.Currency,
		NetAmount:    p.NetAmount,
		Fees:         p.Fees,
		Provider:     p.Provider,
	}
	if kind == domain.NotificationCompletion {
		bank := p.Bank
		n.BankDetails = &bank
	}
	if kind == domain.NotificationFailure && p.FailureReason != nil {
		n.FailureReason = *p.FailureReason
	}
	return n, true
}
