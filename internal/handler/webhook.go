package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
	"github.com/josh-kwaku/chainfund-payouts/internal/service"
)

const maxWebhookBody = 1 << 20

type adapterSource interface {
	Adapter(name domain.Provider) (provider.Adapter, error)
}

type webhookReceiver interface {
	Receive(ctx context.Context, from domain.Provider, ev provider.Event, raw []byte) (service.ReceiveResult, error)
}

type WebhookHandler struct {
	adapters adapterSource
	receiver webhookReceiver
}

func NewWebhookHandler(adapters adapterSource, receiver webhookReceiver) *WebhookHandler {
	return &WebhookHandler{adapters: adapters, receiver: receiver}
}

func (h *WebhookHandler) ReceiveProviderWebhook(w http.ResponseWriter, r *http.Request) {
	name := domain.Provider(chi.URLParam(r, "provider"))
	log := logging.FromContext(r.Context()).With("provider", name)

	adapter, err := h.adapters.Adapter(name)
	if err != nil {
		log.Warn("webhook for unknown provider")
		RespondAppError(w, ErrUnknownProvider, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if !adapter.VerifyWebhookSignature(body, r.Header.Get(adapter.SignatureHeader())) {
		log.Warn("webhook signature verification failed")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	ev, err := adapter.ParseWebhookEvent(body)
	if err != nil {
		// Signed by the provider but unusable; a retry would not help.
		log.Error("failed to parse webhook event", "error", err)
		RespondSuccess(w, http.StatusOK, map[string]string{"status": string(service.ReceiveIgnored)})
		return
	}

	log = log.With("event_id", ev.EventID, "event_type", ev.RawType)
	if ev.Kind == provider.EventUnknown {
		log.Warn("ignoring unhandled webhook event")
		RespondSuccess(w, http.StatusOK, map[string]string{"status": string(service.ReceiveIgnored)})
		return
	}

	ctx := logging.WithLogger(r.Context(), log)
	result, err := h.receiver.Receive(context.WithoutCancel(ctx), name, ev, body)
	if err != nil {
		log.Error("failed to store webhook event", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			RespondAppError(w, ErrTimeout, nil)
			return
		}
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	log.Info("webhook handled", "result", result)
	RespondSuccess(w, http.StatusOK, map[string]string{"status": string(result)})
}
