package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
	"github.com/josh-kwaku/chainfund-payouts/internal/service/payout"
)

type webhookRepo interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	ClaimPending(ctx context.Context, minAge time.Duration, limit int) ([]domain.WebhookEvent, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, status domain.WebhookEventStatus, lastErr *string) error
}

type eventApplier interface {
	ApplyProviderEvent(ctx context.Context, from domain.Provider, ev provider.Event) (payout.Outcome, error)
}

type adapterSource interface {
	Adapter(name domain.Provider) (provider.Adapter, error)
}

type notifier interface {
	Dispatch(ctx context.Context, notifications []domain.Notification)
}

// ReceiveResult tells the webhook handler what happened to a delivery.
type ReceiveResult string

const (
	ReceiveApplied         ReceiveResult = "processed"
	ReceiveIgnored         ReceiveResult = "ignored"
	ReceiveQueued          ReceiveResult = "queued"
	ReceiveAlreadyReceived ReceiveResult = "already_received"
)

const pollBatchSize = 50

// WebhookProcessor stores provider deliveries in the webhook_events inbox and
// applies them to payouts. Deliveries that cannot be applied yet stay pending
// and are retried by Start until maxAttempts is reached.
type WebhookProcessor struct {
	webhooks    webhookRepo
	payouts     eventApplier
	adapters    adapterSource
	notifier    notifier
	logger      *slog.Logger
	interval    time.Duration
	maxAttempts int
}

func NewWebhookProcessor(
	webhooks webhookRepo,
	payouts eventApplier,
	adapters adapterSource,
	notifier notifier,
	logger *slog.Logger,
	interval time.Duration,
	maxAttempts int,
) *WebhookProcessor {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &WebhookProcessor{
		webhooks:    webhooks,
		payouts:     payouts,
		adapters:    adapters,
		notifier:    notifier,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Receive records a verified, parsed delivery and applies it once.
func (p *WebhookProcessor) Receive(ctx context.Context, from domain.Provider, ev provider.Event, raw []byte) (ReceiveResult, error) {
	event := &domain.WebhookEvent{
		ID:             uuid.New(),
		Provider:       from,
		IdempotencyKey: ev.EventID,
		EventType:      ev.RawType,
		Payload:        raw,
		Status:         domain.WebhookEventStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.webhooks.Create(ctx, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			logging.FromContext(ctx).Info("webhook already received",
				"provider", from,
				"event_id", ev.EventID,
			)
			return ReceiveAlreadyReceived, nil
		}
		return "", fmt.Errorf("Receive: %w", err)
	}

	return p.apply(ctx, *event, ev), nil
}

func (p *WebhookProcessor) Start(ctx context.Context) {
	p.logger.Info("webhook processor started", "interval", p.interval, "max_attempts", p.maxAttempts)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("webhook processor stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *WebhookProcessor) poll(ctx context.Context) {
	events, err := p.webhooks.ClaimPending(ctx, p.interval, pollBatchSize)
	if err != nil {
		p.logger.Error("failed to fetch pending webhook events", "error", err)
		return
	}

	for _, event := range events {
		p.processEvent(ctx, event)
	}
}

// processEvent re-parses a stored delivery and applies it again.
func (p *WebhookProcessor) processEvent(ctx context.Context, event domain.WebhookEvent) ReceiveResult {
	log := p.logger.With("webhook_event_id", event.ID, "provider", event.Provider)
	ctx = logging.WithLogger(ctx, log)

	adapter, err := p.adapters.Adapter(event.Provider)
	if err != nil {
		p.record(ctx, event, domain.WebhookEventStatusFailed, err)
		return ReceiveIgnored
	}

	ev, err := adapter.ParseWebhookEvent(event.Payload)
	if err != nil {
		log.Error("stored webhook payload no longer parses", "error", err)
		p.record(ctx, event, domain.WebhookEventStatusFailed, err)
		return ReceiveIgnored
	}

	return p.apply(ctx, event, ev)
}

func (p *WebhookProcessor) apply(ctx context.Context, event domain.WebhookEvent, ev provider.Event) ReceiveResult {
	log := logging.FromContext(ctx)

	out, err := p.payouts.ApplyProviderEvent(ctx, event.Provider, ev)
	switch {
	case err == nil && out.Ignored:
		p.record(ctx, event, domain.WebhookEventStatusIgnored, nil)
		return ReceiveIgnored
	case err == nil:
		p.record(ctx, event, domain.WebhookEventStatusDispatched, nil)
		if p.notifier != nil && len(out.Notifications) > 0 {
			p.notifier.Dispatch(ctx, out.Notifications)
		}
		return ReceiveApplied
	case errors.Is(err, domain.ErrNotFound):
		p.record(ctx, event, domain.WebhookEventStatusIgnored, err)
		return ReceiveIgnored
	}

	if event.Attempts+1 >= p.maxAttempts {
		log.Error("giving up on webhook event", "attempts", event.Attempts+1, "error", err)
		p.record(ctx, event, domain.WebhookEventStatusFailed, err)
		return ReceiveIgnored
	}

	log.Warn("webhook event not applied, will retry", "attempts", event.Attempts+1, "error", err)
	p.record(ctx, event, domain.WebhookEventStatusPending, err)
	return ReceiveQueued
}

func (p *WebhookProcessor) record(ctx context.Context, event domain.WebhookEvent, status domain.WebhookEventStatus, cause error) {
	var lastErr *string
	if cause != nil {
		msg := cause.Error()
		lastErr = &msg
	}
	// Recorded even when the request was cancelled after the payout changed.
	if err := p.webhooks.RecordAttempt(context.WithoutCancel(ctx), event.ID, status, lastErr); err != nil {
		logging.FromContext(ctx).Error("failed to record webhook attempt",
			"webhook_event_id", event.ID,
			"status", status,
			"error", err,
		)
	}
}
