package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/provider"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
			Details:   details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// RespondDomainError maps service errors onto API errors. Business-rule
// rejections are final; integration failures and timeouts are retryable.
func RespondDomainError(w http.ResponseWriter, err error) {
	var dup *domain.DuplicateActiveRequestError
	if errors.As(err, &dup) {
		RespondAppError(w, ErrDuplicateActiveRequest, map[string]any{"existingPayout": dup.Existing})
		return
	}

	var appErr *AppError

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, provider.ErrTimeout):
		appErr = ErrTimeout
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrForbidden):
		appErr = ErrForbidden
	case errors.Is(err, domain.ErrDuplicateActiveRequest):
		appErr = ErrDuplicateActiveRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrWrongProviderForCurrency):
		appErr = ErrWrongProviderForCurrency
	case errors.Is(err, domain.ErrRecipientNotVerified):
		appErr = ErrRecipientNotVerified
	case errors.Is(err, domain.ErrBelowMinimum):
		appErr = ErrBelowMinimum
	case errors.Is(err, domain.ErrCurrencyMismatch):
		appErr = ErrCurrencyMismatch
	case errors.Is(err, domain.ErrUnsupportedCurrency):
		appErr = ErrUnsupportedCurrency
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	case errors.Is(err, domain.ErrAlreadyProcessing), errors.Is(err, domain.ErrStatusConflict):
		appErr = ErrAlreadyProcessing
	case errors.Is(err, domain.ErrInvalidTransition):
		appErr = ErrInvalidTransition
	case errors.Is(err, domain.ErrNotApproved):
		appErr = ErrNotApproved
	case errors.Is(err, provider.ErrRateLimited):
		appErr = ErrProviderRateLimited
	case errors.Is(err, provider.ErrUnknownProvider):
		appErr = ErrWrongProviderForCurrency
	case isProviderError(err):
		appErr = ErrProviderError
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}

func isProviderError(err error) bool {
	var pErr *provider.Error
	return errors.As(err, &pErr)
}
