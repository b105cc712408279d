// Package notify delivers payout notifications after the fact: an e-mail to
// the requester and an event on the message bus. Delivery failures are
// logged and never reach the payout.
package notify

import (
	"context"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

const PayoutEventsExchange = "payout_events"

type mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
}

type Dispatcher struct {
	mail   mailer
	events publisher
}

func NewDispatcher(mail mailer, events publisher) *Dispatcher {
	return &Dispatcher{mail: mail, events: events}
}

func (d *Dispatcher) Dispatch(ctx context.Context, notifications []domain.Notification) {
	for _, n := range notifications {
		d.dispatchOne(ctx, n)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, n domain.Notification) {
	log := logging.FromContext(ctx).With(
		"payout_id", n.PayoutID,
		"payout_reference", n.Reference,
		"notification", n.Kind,
	)

	if d.mail != nil {
		if n.UserEmail == "" {
			log.Warn("notification has no recipient address, e-mail skipped")
		} else {
			subject, body := render(n)
			if err := d.mail.Send(ctx, n.UserEmail, subject, body); err != nil {
				log.Warn("failed to send payout e-mail", "error", err)
			} else {
				log.Info("payout e-mail sent")
			}
		}
	}

	if d.events != nil {
		if err := d.events.Publish(ctx, PayoutEventsExchange, "payout."+string(n.Kind), n); err != nil {
			log.Warn("failed to publish payout event", "error", err)
		}
	}
}
