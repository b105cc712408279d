package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/auth"
	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
	"github.com/josh-kwaku/chainfund-payouts/internal/service/payout"
)

type payoutService interface {
	RequestPayout(ctx context.Context, in payout.RequestInput) (*payout.RequestResult, error)
	GetPayout(ctx context.Context, id, requesterID uuid.UUID, isAdmin bool) (*domain.Payout, error)
	AuditTrail(ctx context.Context, id uuid.UUID) ([]domain.AuditEntry, error)
	Approve(ctx context.Context, id, adminID uuid.UUID) (payout.Outcome, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (payout.Outcome, error)
	Process(ctx context.Context, id uuid.UUID) (payout.Outcome, error)
	ReconcileAll(ctx context.Context) (payout.Summary, error)
}

type notifier interface {
	Dispatch(ctx context.Context, notifications []domain.Notification)
}

type PayoutHandler struct {
	payouts  payoutService
	notifier notifier
}

func NewPayoutHandler(payouts payoutService, notifier notifier) *PayoutHandler {
	return &PayoutHandler{payouts: payouts, notifier: notifier}
}

type createPayoutRequest struct {
	SubjectType string `json:"subject_type" validate:"required,oneof=campaign commission"`
	SubjectID   string `json:"subject_id" validate:"required,uuid"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Currency    string `json:"currency" validate:"max=16"`
	Provider    string `json:"provider" validate:"omitempty,oneof=stripe paystack"`
}

type bankDetailsDTO struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type payoutDTO struct {
	ID                uuid.UUID      `json:"id"`
	Reference         string         `json:"reference"`
	SubjectType       string         `json:"subject_type"`
	SubjectID         uuid.UUID      `json:"subject_id"`
	Status            string         `json:"status"`
	Amount            int64          `json:"amount"`
	Fees              int64          `json:"fees"`
	NetAmount         int64          `json:"net_amount"`
	Currency          string         `json:"currency"`
	Provider          string         `json:"provider"`
	BankDetails       bankDetailsDTO `json:"bank_details"`
	TransactionID     *string        `json:"transaction_id,omitempty"`
	FailureReason     *string        `json:"failure_reason,omitempty"`
	EstimatedDelivery string         `json:"estimated_delivery,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	ProcessedAt       *time.Time     `json:"processed_at,omitempty"`
}

func toPayoutDTO(p *domain.Payout) payoutDTO {
	return payoutDTO{
		ID:          p.ID,
		Reference:   p.Reference,
		SubjectType: string(p.SubjectType),
		SubjectID:   p.SubjectID,
		Status:      string(p.Status),
		Amount:      p.GrossAmount,
		Fees:        p.Fees,
		NetAmount:   p.NetAmount,
		Currency:    string(p.Currency),
		Provider:    string(p.Provider),
		BankDetails: bankDetailsDTO{
			BankName:      p.Bank.BankName,
			AccountNumber: p.Bank.MaskedAccountNumber(),
			AccountName:   p.Bank.AccountName,
		},
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		ProcessedAt:   p.ProcessedAt,
	}
}

type auditEntryDTO struct {
	ID        uuid.UUID `json:"id"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *PayoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createPayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.payouts.RequestPayout(r.Context(), payout.RequestInput{
		RequesterID: userID,
		SubjectType: domain.SubjectType(req.SubjectType),
		SubjectID:   uuid.MustParse(req.SubjectID),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Provider:    domain.Provider(req.Provider),
	})
	if err != nil {
		log.Warn("payout request failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := toPayoutDTO(res.Payout)
	dto.EstimatedDelivery = res.EstimatedDelivery

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payouts/%s", res.Payout.ID))
	RespondSuccess(w, http.StatusCreated, dto)
}

func (h *PayoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, appErr := payoutIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	p, err := h.payouts.GetPayout(r.Context(), id, userID, auth.IsAdmin(r.Context()))
	if err != nil {
		logging.FromContext(r.Context()).Warn("payout lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPayoutDTO(p))
}

func (h *PayoutHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, appErr := payoutIDFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	entries, err := h.payouts.AuditTrail(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("audit trail lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	out := make([]auditEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryDTO{
			ID:        e.ID,
			OldStatus: string(e.OldStatus),
			NewStatus: string(e.NewStatus),
			Actor:     string(e.Actor),
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	RespondSuccess(w, http.StatusOK, out)
}

func payoutIDFromPath(r *http.Request) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}
