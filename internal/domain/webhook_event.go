package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending    WebhookEventStatus = "pending"
	WebhookEventStatusDispatched WebhookEventStatus = "dispatched"
	WebhookEventStatusIgnored    WebhookEventStatus = "ignored"
	WebhookEventStatusFailed     WebhookEventStatus = "failed"
)

// WebhookEvent is an inbox row holding the raw, signature-verified body of a
// provider delivery. IdempotencyKey is unique per provider event.
type WebhookEvent struct {
	ID             uuid.UUID
	Provider       Provider
	IdempotencyKey string
	EventType      string
	Payload        json.RawMessage
	Status         WebhookEventStatus
	Attempts       int
	LastError      *string
	LastAttempt    *time.Time
	CreatedAt      time.Time
}
