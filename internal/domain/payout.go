package domain

import (
	"time"

	"github.com/google/uuid"
)

type SubjectType string

const (
	SubjectTypeCampaign   SubjectType = "campaign"
	SubjectTypeCommission SubjectType = "commission"
)

func (t SubjectType) IsValid() bool {
	return t == SubjectTypeCampaign || t == SubjectTypeCommission
}

// BankDetails is the recipient banking snapshot captured when a payout is
// requested. It is never updated afterwards.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
}

func (b BankDetails) IsComplete() bool {
	return b.BankName != "" && b.AccountNumber != "" && b.AccountName != "" && b.BankCode != ""
}

// MaskedAccountNumber keeps the last four digits for e-mails and logs.
func (b BankDetails) MaskedAccountNumber() string {
	n := len(b.AccountNumber)
	if n <= 4 {
		return b.AccountNumber
	}
	masked := make([]byte, n)
	for i := range n - 4 {
		masked[i] = '*'
	}
	copy(masked[n-4:], b.AccountNumber[n-4:])
	return string(masked)
}

type Payout struct {
	ID                uuid.UUID
	Reference         string
	SubjectType       SubjectType
	SubjectID         uuid.UUID
	RequestedBy       uuid.UUID
	RequestedAmount   int64
	GrossAmount       int64
	Fees              int64
	NetAmount         int64
	Currency          Currency
	Provider          Provider
	Status            PayoutStatus
	Bank              BankDetails
	TransactionID     *string
	FailureReason     *string
	DispatchClaimedAt *time.Time
	CreatedAt         time.Time
	ProcessedAt       *time.Time
	UpdatedAt         time.Time
}

// ActivePayoutSummary is what a caller needs to render an in-flight request.
type ActivePayoutSummary struct {
	ID        uuid.UUID    `json:"id"`
	Reference string       `json:"reference"`
	Status    PayoutStatus `json:"status"`
	Amount    int64        `json:"amount"`
	Currency  Currency     `json:"currency"`
	CreatedAt time.Time    `json:"created_at"`
}

func (p *Payout) Summary() ActivePayoutSummary {
	return ActivePayoutSummary{
		ID:        p.ID,
		Reference: p.Reference,
		Status:    p.Status,
		Amount:    p.RequestedAmount,
		Currency:  p.Currency,
		CreatedAt: p.CreatedAt,
	}
}

// StatusChange carries the columns written alongside a status move. Nil
// fields keep their stored value.
type StatusChange struct {
	TransactionID *string
	FailureReason *string
	ProcessedAt   *time.Time
}
