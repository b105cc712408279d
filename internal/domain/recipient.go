package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ProviderRecipient caches the provider-side registration of a set of banking
// details so repeat payouts reuse the same recipient handle.
type ProviderRecipient struct {
	Provider      Provider
	Fingerprint   string
	RecipientCode string
	Currency      Currency
	CreatedAt     time.Time
}

func RecipientFingerprint(p Provider, bank BankDetails, currency Currency) string {
	h := sha256.New()
	for _, part := range []string{
		string(p),
		strings.TrimSpace(bank.BankCode),
		strings.TrimSpace(bank.AccountNumber),
		string(currency),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
