package handler

import "net/http"

type AppError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{Status: http.StatusUnauthorized, Code: "MISSING_TOKEN", Message: "Authorization header required"}
	ErrInvalidToken     = &AppError{Status: http.StatusUnauthorized, Code: "INVALID_TOKEN", Message: "Token is invalid or expired"}
	ErrForbidden        = &AppError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "You are not allowed to perform this action"}
	ErrInvalidRequest   = &AppError{Status: http.StatusBadRequest, Code: "INVALID_REQUEST", Message: "Invalid request body"}
	ErrValidationFailed = &AppError{Status: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Validation failed"}
	ErrResourceNotFound = &AppError{Status: http.StatusNotFound, Code: "RESOURCE_NOT_FOUND", Message: "Resource not found"}
	ErrInternalError    = &AppError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
	ErrInvalidSignature = &AppError{Status: http.StatusBadRequest, Code: "INVALID_SIGNATURE", Message: "Webhook signature is invalid"}
	ErrUnknownProvider  = &AppError{Status: http.StatusNotFound, Code: "UNKNOWN_PROVIDER", Message: "Unknown payment provider"}

	ErrInvalidAmount            = &AppError{Status: http.StatusBadRequest, Code: "INVALID_AMOUNT", Message: "Amount must be greater than zero"}
	ErrUnsupportedCurrency      = &AppError{Status: http.StatusBadRequest, Code: "UNSUPPORTED_CURRENCY", Message: "Currency is not supported"}
	ErrDuplicateActiveRequest   = &AppError{Status: http.StatusConflict, Code: "DUPLICATE_ACTIVE_REQUEST", Message: "An active payout request already exists for this campaign or commission"}
	ErrInsufficientFunds        = &AppError{Status: http.StatusUnprocessableEntity, Code: "INSUFFICIENT_FUNDS", Message: "Requested amount exceeds the available balance"}
	ErrWrongProviderForCurrency = &AppError{Status: http.StatusUnprocessableEntity, Code: "WRONG_PROVIDER_FOR_CURRENCY", Message: "Provider does not serve this currency"}
	ErrRecipientNotVerified     = &AppError{Status: http.StatusUnprocessableEntity, Code: "RECIPIENT_NOT_VERIFIED", Message: "Banking details are missing or unverified"}
	ErrBelowMinimum             = &AppError{Status: http.StatusUnprocessableEntity, Code: "BELOW_MINIMUM_PAYOUT", Message: "Amount is below the minimum payout"}
	ErrCurrencyMismatch         = &AppError{Status: http.StatusUnprocessableEntity, Code: "CURRENCY_MISMATCH", Message: "Currency does not match the campaign or commission currency"}
	ErrAlreadyProcessing        = &AppError{Status: http.StatusConflict, Code: "ALREADY_PROCESSING", Message: "Payout is already being processed"}
	ErrInvalidTransition        = &AppError{Status: http.StatusConflict, Code: "INVALID_TRANSITION", Message: "Payout cannot move to the requested status"}
	ErrNotApproved              = &AppError{Status: http.StatusConflict, Code: "NOT_APPROVED", Message: "Payout has not been approved"}
	ErrIdempotencyConflict      = &AppError{Status: http.StatusConflict, Code: "IDEMPOTENCY_CONFLICT", Message: "Idempotency key already used with a different request"}

	ErrTimeout             = &AppError{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: "The request timed out, please retry", Retryable: true}
	ErrProviderError       = &AppError{Status: http.StatusBadGateway, Code: "PROVIDER_ERROR", Message: "The payment provider could not complete the request", Retryable: true}
	ErrProviderRateLimited = &AppError{Status: http.StatusTooManyRequests, Code: "PROVIDER_RATE_LIMITED", Message: "The payment provider is rate limiting requests", Retryable: true}
	ErrRateLimited         = &AppError{Status: http.StatusTooManyRequests, Code: "RATE_LIMITED", Message: "Too many requests, please retry later", Retryable: true}
	ErrServiceUnavailable  = &AppError{Status: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE", Message: "Service temporarily unavailable", Retryable: true}
)
