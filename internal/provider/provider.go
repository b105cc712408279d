// Package provider holds the payment provider adapters. Each adapter
// translates between the payout domain and one provider's HTTP API and
// webhook format; nothing provider-specific leaks past this package.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusRequiresApproval Status = "requires-approval"
	StatusSuccess          Status = "success"
	StatusFailed           Status = "failed"
	StatusReversed         Status = "reversed"
	StatusUnknown          Status = "unknown"
)

type EventKind string

const (
	EventTransferCreated   EventKind = "transfer.created"
	EventTransferSucceeded EventKind = "transfer.succeeded"
	EventTransferFailed    EventKind = "transfer.failed"
	EventTransferReversed  EventKind = "transfer.reversed"
	EventUnknown           EventKind = "unknown"
)

// Event is a provider webhook normalized at the parse boundary. Known kinds
// always carry at least one of PayoutID, Reference or TransactionID.
type Event struct {
	Kind          EventKind
	EventID       string
	RawType       string
	PayoutID      string
	Reference     string
	TransactionID string
	Reason        string
}

type RecipientRequest struct {
	AccountName   string
	AccountNumber string
	BankCode      string
	BankName      string
	Currency      domain.Currency
}

type TransferRequest struct {
	Amount    int64
	Recipient string
	Reason    string
	Currency  domain.Currency
	Reference string
	PayoutID  string
}

type TransferResult struct {
	TransactionID string
	Status        Status
	RawStatus     string
	FailureReason string
}

// Adapter is implemented once per provider.
type Adapter interface {
	Name() domain.Provider
	CreateRecipient(ctx context.Context, req RecipientRequest) (string, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	VerifyTransfer(ctx context.Context, transactionID string) (TransferResult, error)
	// LookupTransfer finds a transfer by payout reference. It returns
	// ErrTransferNotFound when the provider never received one.
	LookupTransfer(ctx context.Context, reference string) (TransferResult, error)
	VerifyWebhookSignature(raw []byte, header string) bool
	ParseWebhookEvent(raw []byte) (Event, error)
	SignatureHeader() string
	EstimatedDelivery() string
	RequiresVerifiedAccount() bool
}

var (
	ErrAuthFailure            = errors.New("provider authentication failed")
	ErrValidation             = errors.New("provider rejected the request")
	ErrRateLimited            = errors.New("provider rate limit exceeded")
	ErrTimeout                = errors.New("provider request timed out")
	ErrInvalidBankDetails     = errors.New("invalid bank details")
	ErrRecipientAlreadyExists = errors.New("recipient already exists")
	ErrUnavailable            = errors.New("provider unavailable")
	ErrMalformedEvent         = errors.New("malformed webhook event")
	ErrUnknownProvider        = errors.New("unknown provider")
	ErrTransferNotFound       = errors.New("transfer not found")
)

// Error is returned by adapters for every failed provider call. Kind is one
// of the Err* sentinels above.
type Error struct {
	Provider   domain.Provider
	Kind       error
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Retryable reports whether a later attempt of the same call may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
