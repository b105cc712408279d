package domain

import "github.com/google/uuid"

type NotificationKind string

const (
	NotificationApproval   NotificationKind = "approval"
	NotificationCompletion NotificationKind = "completion"
	NotificationFailure    NotificationKind = "failure"
)

// Notification is emitted after a transition commits. Delivering it is the
// caller's job and must never affect the payout.
type Notification struct {
	Kind          NotificationKind `json:"kind"`
	PayoutID      uuid.UUID        `json:"payout_id"`
	Reference     string           `json:"reference"`
	UserEmail     string           `json:"user_email"`
	UserName      string           `json:"user_name"`
	SubjectTitle  string           `json:"subject_title"`
	Amount        int64            `json:"amount"`
	Currency      Currency         `json:"currency"`
	NetAmount     int64            `json:"net_amount"`
	Fees          int64            `json:"fees"`
	Provider      Provider         `json:"provider"`
	BankDetails   *BankDetails     `json:"bank_details,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
}
