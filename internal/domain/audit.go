package domain

import (
	"time"

	"github.com/google/uuid"
)

type Actor string

const (
	ActorSystem          Actor = "system"
	ActorRequester       Actor = "requester"
	ActorAdmin           Actor = "admin"
	ActorProcessor       Actor = "processor"
	ActorReconciliation  Actor = "reconciliation"
	ActorStripeWebhook   Actor = "stripe_webhook"
	ActorPaystackWebhook Actor = "paystack_webhook"
)

func WebhookActor(p Provider) Actor {
	if p == ProviderStripe {
		return ActorStripeWebhook
	}
	return ActorPaystackWebhook
}

// AuditEntry is append-only. OldStatus is empty for the creation entry.
type AuditEntry struct {
	ID        uuid.UUID
	PayoutID  uuid.UUID
	OldStatus PayoutStatus
	NewStatus PayoutStatus
	Actor     Actor
	Reason    string
	CreatedAt time.Time
}
