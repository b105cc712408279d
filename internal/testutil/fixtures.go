package testutil

import (
	"database/sql"
	"testing"

	"github.com/google/uuid"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

func SeedUser(t *testing.T, db *sql.DB, email, name, role string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)`,
		id, email, name, role,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return id
}

// VerifiedBank is a complete, verified set of Nigerian bank details.
var VerifiedBank = domain.BankDetails{
	BankName:      "GTBank",
	AccountNumber: "0123456789",
	AccountName:   "Ada Obi",
	BankCode:      "058",
}

func SeedCampaign(t *testing.T, db *sql.DB, ownerID uuid.UUID, currency string, raised int64) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO campaigns (id, owner_id, title, currency, raised_amount,
			bank_name, account_number, account_name, bank_code, account_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)`,
		id, ownerID, "Clean water for Ikeja", currency, raised,
		VerifiedBank.BankName, VerifiedBank.AccountNumber, VerifiedBank.AccountName, VerifiedBank.BankCode,
	)
	if err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
	return id
}

func SeedAmbassador(t *testing.T, db *sql.DB, userID uuid.UUID, currency string, earned int64) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO ambassadors (id, user_id, currency, earned_commission,
			bank_name, account_number, account_name, bank_code, account_verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)`,
		id, userID, currency, earned,
		VerifiedBank.BankName, VerifiedBank.AccountNumber, VerifiedBank.AccountName, VerifiedBank.BankCode,
	)
	if err != nil {
		t.Fatalf("seed ambassador: %v", err)
	}
	return id
}

func PayoutStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.PayoutStatus {
	t.Helper()

	var status domain.PayoutStatus
	if err := db.QueryRow(`SELECT status FROM payouts WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get payout status %s: %v", id, err)
	}
	return status
}

func CountAuditEntries(t *testing.T, db *sql.DB, payoutID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM payout_audit_entries WHERE payout_id = $1`, payoutID).Scan(&count)
	if err != nil {
		t.Fatalf("count audit entries for payout %s: %v", payoutID, err)
	}
	return count
}
