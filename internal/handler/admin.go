package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/josh-kwaku/chainfund-payouts/internal/auth"
	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/service/payout"
)

type rejectPayoutRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *PayoutHandler) Approve(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, appErr := payoutIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	out, err := h.payouts.Approve(r.Context(), id, adminID)
	h.respondOutcome(w, r, out, err, "payout approval failed")
}

func (h *PayoutHandler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, appErr := payoutIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req rejectPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	out, err := h.payouts.Reject(r.Context(), id, adminID, req.Reason)
	h.respondOutcome(w, r, out, err, "payout rejection failed")
}

func (h *PayoutHandler) Process(w http.ResponseWriter, r *http.Request) {
	id, appErr := payoutIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	out, err := h.payouts.Process(r.Context(), id)
	h.respondOutcome(w, r, out, err, "payout processing failed")
}

func (h *PayoutHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.payouts.ReconcileAll(r.Context())
	h.dispatch(r, summary.Notifications)
	if err != nil {
		logging.FromContext(r.Context()).Error("reconciliation failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, summary)
}

func (h *PayoutHandler) respondOutcome(w http.ResponseWriter, r *http.Request, out payout.Outcome, err error, msg string) {
	if err != nil {
		logging.FromContext(r.Context()).Warn(msg, "error", err)
		RespondDomainError(w, err)
		return
	}

	h.dispatch(r, out.Notifications)
	if out.Payout == nil {
		RespondSuccess(w, http.StatusOK, nil)
		return
	}
	RespondSuccess(w, http.StatusOK, toPayoutDTO(out.Payout))
}

// dispatch detaches from the request so a client disconnect does not drop
// notifications for a committed change.
func (h *PayoutHandler) dispatch(r *http.Request, notifications []domain.Notification) {
	if h.notifier == nil || len(notifications) == 0 {
		return
	}
	h.notifier.Dispatch(context.WithoutCancel(r.Context()), notifications)
}
