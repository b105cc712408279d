package domain

import "github.com/google/uuid"

// Subject is the campaign or ambassador commission a payout disburses for.
type Subject struct {
	Type            SubjectType
	ID              uuid.UUID
	OwnerID         uuid.UUID
	OwnerEmail      string
	OwnerName       string
	Title           string
	Currency        Currency
	RaisedAmount    int64
	DisbursedAmount int64
	Bank            BankDetails
	AccountVerified bool
}

func (s *Subject) Available() int64 {
	available := s.RaisedAmount - s.DisbursedAmount
	if available < 0 {
		return 0
	}
	return available
}
