package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrForbidden                = errors.New("requester is not authorized for this subject")
	ErrInvalidAmount            = errors.New("amount must be greater than zero")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrDuplicateActiveRequest   = errors.New("an active payout request already exists")
	ErrWrongProviderForCurrency = errors.New("provider does not serve this currency")
	ErrRecipientNotVerified     = errors.New("recipient banking details missing or unverified")
	ErrCurrencyMismatch         = errors.New("currency mismatch")
	ErrUnsupportedCurrency      = errors.New("unsupported currency")
	ErrBelowMinimum             = errors.New("amount below minimum payout")
	ErrNotApproved              = errors.New("payout is not approved")
	ErrAlreadyProcessing        = errors.New("payout already being processed")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrStatusConflict           = errors.New("payout status changed concurrently")
	ErrDuplicateKey             = errors.New("duplicate key")
)

// DuplicateActiveRequestError carries the in-flight payout so callers can show it.
type DuplicateActiveRequestError struct {
	Existing ActivePayoutSummary
}

func (e *DuplicateActiveRequestError) Error() string {
	return fmt.Sprintf("%s: payout %s is %s", ErrDuplicateActiveRequest, e.Existing.ID, e.Existing.Status)
}

func (e *DuplicateActiveRequestError) Unwrap() error {
	return ErrDuplicateActiveRequest
}
