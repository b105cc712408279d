// Package fx holds the static, approximate exchange-rate table used for
// eligibility thresholds and fee conversion. It is not suitable for
// settlement-accurate accounting.
package fx

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
	"github.com/josh-kwaku/chainfund-payouts/internal/logging"
)

type RateTable struct {
	reference       domain.Currency
	defaultCurrency domain.Currency
	// value of one unit of the currency expressed in the reference currency
	rates map[domain.Currency]decimal.Decimal
}

func NewRateTable(reference, defaultCurrency string, rates map[string]float64) (*RateTable, error) {
	t := &RateTable{
		reference:       domain.Currency(strings.ToUpper(reference)),
		defaultCurrency: domain.Currency(strings.ToUpper(defaultCurrency)),
		rates:           make(map[domain.Currency]decimal.Decimal, len(rates)),
	}
	for code, rate := range rates {
		if rate <= 0 {
			return nil, fmt.Errorf("NewRateTable: rate for %s must be positive", code)
		}
		t.rates[domain.Currency(strings.ToUpper(strings.TrimSpace(code)))] = decimal.NewFromFloat(rate)
	}
	if _, ok := t.rates[t.reference]; !ok {
		return nil, fmt.Errorf("NewRateTable: no rate for reference %s: %w", t.reference, domain.ErrUnsupportedCurrency)
	}
	if _, ok := t.rates[t.defaultCurrency]; !ok {
		return nil, fmt.Errorf("NewRateTable: no rate for default %s: %w", t.defaultCurrency, domain.ErrUnsupportedCurrency)
	}
	return t, nil
}

func (t *RateTable) Reference() domain.Currency { return t.reference }

func (t *RateTable) Default() domain.Currency { return t.defaultCurrency }

func (t *RateTable) Supports(c domain.Currency) bool {
	_, ok := t.rates[c]
	return ok
}

// ConvertToReference converts minor units of from into minor units of the
// reference currency.
func (t *RateTable) ConvertToReference(amount int64, from domain.Currency) (int64, error) {
	rate, ok := t.rates[from]
	if !ok {
		return 0, fmt.Errorf("ConvertToReference: %s: %w", from, domain.ErrUnsupportedCurrency)
	}
	ref := t.rates[t.reference]
	return decimal.NewFromInt(amount).Mul(rate).Div(ref).Round(0).IntPart(), nil
}

// ConvertFromReference converts minor units of the reference currency into
// minor units of to.
func (t *RateTable) ConvertFromReference(amount int64, to domain.Currency) (int64, error) {
	rate, ok := t.rates[to]
	if !ok {
		return 0, fmt.Errorf("ConvertFromReference: %s: %w", to, domain.ErrUnsupportedCurrency)
	}
	ref := t.rates[t.reference]
	return decimal.NewFromInt(amount).Mul(ref).Div(rate).Round(0).IntPart(), nil
}

var currencyAliases = map[string]domain.Currency{
	"₦":         domain.CurrencyNGN,
	"N":         domain.CurrencyNGN,
	"NAIRA":     domain.CurrencyNGN,
	"$":         domain.CurrencyUSD,
	"US$":       domain.CurrencyUSD,
	"DOLLAR":    domain.CurrencyUSD,
	"DOLLARS":   domain.CurrencyUSD,
	"£":         domain.CurrencyGBP,
	"POUND":     domain.CurrencyGBP,
	"POUNDS":    domain.CurrencyGBP,
	"€":         domain.CurrencyEUR,
	"EURO":      domain.CurrencyEUR,
	"EUROS":     domain.CurrencyEUR,
	"GH₵":       domain.CurrencyGHS,
	"₵":         domain.CurrencyGHS,
	"CEDI":      domain.CurrencyGHS,
	"CEDIS":     domain.CurrencyGHS,
	"R":         domain.CurrencyZAR,
	"RAND":      domain.CurrencyZAR,
	"KSH":       domain.CurrencyKES,
	"SHILLING":  domain.CurrencyKES,
	"SHILLINGS": domain.CurrencyKES,
	"C$":        domain.CurrencyCAD,
	"CA$":       domain.CurrencyCAD,
}

// CurrencyCode normalizes free-form currency input. Unknown input falls back
// to the configured default and is logged; it never fails.
func (t *RateTable) CurrencyCode(ctx context.Context, raw string) domain.Currency {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	if c := domain.Currency(cleaned); c.IsValid() && t.Supports(c) {
		return c
	}
	if c, ok := currencyAliases[cleaned]; ok && t.Supports(c) {
		return c
	}

	logging.FromContext(ctx).Warn("unrecognized currency, using default",
		"raw_currency", raw,
		"default_currency", t.defaultCurrency,
	)
	return t.defaultCurrency
}
