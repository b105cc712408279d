package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
	"github.com/josh-kwaku/chainfund-payouts/internal/service/payout"
)

type attempt struct {
	id      uuid.UUID
	status  domain.WebhookEventStatus
	lastErr *string
}

type fakeWebhooks struct {
	mu       sync.Mutex
	keys     map[string]bool
	created  []domain.WebhookEvent
	pending  []domain.WebhookEvent
	attempts []attempt
}

func newFakeWebhooks() *fakeWebhooks {
	return &fakeWebhooks{keys: map[string]bool{}}
}

func (f *fakeWebhooks) Create(_ context.Context, e *domain.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(e.Provider) + "/" + e.IdempotencyKey
	if f.keys[key] {
		return domain.ErrDuplicateKey
	}
	f.keys[key] = true
	f.created = append(f.created, *e)
	return nil
}

func (f *fakeWebhooks) ClaimPending(_ context.Context, _ time.Duration, _ int) ([]domain.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeWebhooks) RecordAttempt(_ context.Context, id uuid.UUID, status domain.WebhookEventStatus, lastErr *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt{id, status, lastErr})
	return nil
}

func (f *fakeWebhooks) last() attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[len(f.attempts)-1]
}

type fakeApplier struct {
	out   payout.Outcome
	err   error
	calls int
	last  provider.Event
}

func (f *fakeApplier) ApplyProviderEvent(_ context.Context, _ domain.Provider, ev provider.Event) (payout.Outcome, error) {
	f.calls++
	f.last = ev
	return f.out, f.err
}

type parsingAdapter struct {
	provider.Adapter
	ev  provider.Event
	err error
}

func (a parsingAdapter) ParseWebhookEvent([]byte) (provider.Event, error) {
	return a.ev, a.err
}

type fakeAdapters struct {
	adapter provider.Adapter
}

func (f fakeAdapters) Adapter(domain.Provider) (provider.Adapter, error) {
	if f.adapter == nil {
		return nil, provider.ErrUnknownProvider
	}
	return f.adapter, nil
}

type recordingNotifier struct {
	got []domain.Notification
}

func (r *recordingNotifier) Dispatch(_ context.Context, n []domain.Notification) {
	r.got = append(r.got, n...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func succeeded() provider.Event {
	return provider.Event{
		Kind:          provider.EventTransferSucceeded,
		EventID:       "transfer.success:TRF_1",
		RawType:       "transfer.success",
		Reference:     "PO-20261016120000-ABCDEF12-XYZ234",
		TransactionID: "TRF_1",
	}
}

func TestWebhookProcessor_Receive(t *testing.T) {
	tests := []struct {
		name       string
		out        payout.Outcome
		err        error
		want       ReceiveResult
		wantStatus domain.WebhookEventStatus
		wantNotify int
	}{
		{
			name: "applied event notifies",
			out: payout.Outcome{Changed: true, Notifications: []domain.Notification{
				{Kind: domain.NotificationCompletion},
			}},
			want:       ReceiveApplied,
			wantStatus: domain.WebhookEventStatusDispatched,
			wantNotify: 1,
		},
		{
			name:       "ignored event",
			out:        payout.Outcome{Ignored: true},
			want:       ReceiveIgnored,
			wantStatus: domain.WebhookEventStatusIgnored,
		},
		{
			name:       "unknown payout",
			err:        domain.ErrNotFound,
			want:       ReceiveIgnored,
			wantStatus: domain.WebhookEventStatusIgnored,
		},
		{
			name:       "early event stays pending",
			err:        domain.ErrInvalidTransition,
			want:       ReceiveQueued,
			wantStatus: domain.WebhookEventStatusPending,
		},
		{
			name:       "database error stays pending",
			err:        errors.New("connection reset"),
			want:       ReceiveQueued,
			wantStatus: domain.WebhookEventStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			webhooks := newFakeWebhooks()
			applier := &fakeApplier{out: tt.out, err: tt.err}
			notes := &recordingNotifier{}
			p := NewWebhookProcessor(webhooks, applier, fakeAdapters{}, notes, quietLogger(), time.Second, 3)

			got, err := p.Receive(context.Background(), domain.ProviderPaystack, succeeded(), []byte(`{}`))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.Len(t, webhooks.created, 1)
			assert.Equal(t, "transfer.success:TRF_1", webhooks.created[0].IdempotencyKey)
			assert.Equal(t, tt.wantStatus, webhooks.last().status)
			assert.Len(t, notes.got, tt.wantNotify)
		})
	}
}

func TestWebhookProcessor_ReceiveDuplicate(t *testing.T) {
	webhooks := newFakeWebhooks()
	applier := &fakeApplier{out: payout.Outcome{Changed: true}}
	p := NewWebhookProcessor(webhooks, applier, fakeAdapters{}, nil, quietLogger(), time.Second, 3)
	ctx := context.Background()

	first, err := p.Receive(ctx, domain.ProviderPaystack, succeeded(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, ReceiveApplied, first)

	second, err := p.Receive(ctx, domain.ProviderPaystack, succeeded(), []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, ReceiveAlreadyReceived, second)
	assert.Equal(t, 1, applier.calls)
}

func TestWebhookProcessor_PollRetriesPending(t *testing.T) {
	webhooks := newFakeWebhooks()
	stored := domain.WebhookEvent{
		ID:       uuid.New(),
		Provider: domain.ProviderPaystack,
		Payload:  []byte(`{"event":"transfer.success"}`),
		Status:   domain.WebhookEventStatusPending,
		Attempts: 1,
	}
	webhooks.pending = []domain.WebhookEvent{stored}

	applier := &fakeApplier{out: payout.Outcome{Changed: true}}
	adapters := fakeAdapters{adapter: parsingAdapter{ev: succeeded()}}
	p := NewWebhookProcessor(webhooks, applier, adapters, nil, quietLogger(), time.Second, 3)

	p.poll(context.Background())

	assert.Equal(t, 1, applier.calls)
	assert.Equal(t, "TRF_1", applier.last.TransactionID)
	assert.Equal(t, attempt{id: stored.ID, status: domain.WebhookEventStatusDispatched}, webhooks.last())
}

func TestWebhookProcessor_GivesUpAfterMaxAttempts(t *testing.T) {
	webhooks := newFakeWebhooks()
	applier := &fakeApplier{err: domain.ErrInvalidTransition}
	adapters := fakeAdapters{adapter: parsingAdapter{ev: succeeded()}}
	p := NewWebhookProcessor(webhooks, applier, adapters, nil, quietLogger(), time.Second, 3)

	got := p.processEvent(context.Background(), domain.WebhookEvent{
		ID:       uuid.New(),
		Provider: domain.ProviderPaystack,
		Attempts: 2,
	})

	assert.Equal(t, ReceiveIgnored, got)
	last := webhooks.last()
	assert.Equal(t, domain.WebhookEventStatusFailed, last.status)
	require.NotNil(t, last.lastErr)
	assert.Contains(t, *last.lastErr, "invalid status transition")
}

func TestWebhookProcessor_UnparseablePayloadFails(t *testing.T) {
	webhooks := newFakeWebhooks()
	applier := &fakeApplier{}
	adapters := fakeAdapters{adapter: parsingAdapter{err: provider.ErrMalformedEvent}}
	p := NewWebhookProcessor(webhooks, applier, adapters, nil, quietLogger(), time.Second, 3)

	p.processEvent(context.Background(), domain.WebhookEvent{ID: uuid.New(), Provider: domain.ProviderStripe})

	assert.Zero(t, applier.calls)
	assert.Equal(t, domain.WebhookEventStatusFailed, webhooks.last().status)
}

func TestWebhookProcessor_StartStopsOnCancel(t *testing.T) {
	p := NewWebhookProcessor(newFakeWebhooks(), &fakeApplier{}, fakeAdapters{}, nil, quietLogger(), 10*time.Millisecond, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
}
