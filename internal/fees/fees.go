package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

// Schedule is a provider's percentage plus fixed fee. FixedReference is in
// minor units of the reference currency and is converted to the payout
// currency before it is applied.
type Schedule struct {
	Percent        decimal.Decimal
	FixedReference int64
}

func DefaultSchedules() map[domain.Provider]Schedule {
	return map[domain.Provider]Schedule{
		domain.ProviderStripe:   {Percent: decimal.RequireFromString("0.025"), FixedReference: 30},
		domain.ProviderPaystack: {Percent: decimal.RequireFromString("0.015"), FixedReference: 0},
	}
}

type Breakdown struct {
	Gross int64
	Fees  int64
	Net   int64
}

type referenceConverter interface {
	ConvertFromReference(amount int64, to domain.Currency) (int64, error)
}

type Calculator struct {
	schedules map[domain.Provider]Schedule
	rates     referenceConverter
}

func NewCalculator(schedules map[domain.Provider]Schedule, rates referenceConverter) *Calculator {
	return &Calculator{schedules: schedules, rates: rates}
}

// Calculate is deterministic for a given schedule and rate table. Fees are
// rounded to the minor unit and clamped to [0, amount] so Fees+Net == Gross.
func (c *Calculator) Calculate(amount int64, currency domain.Currency, provider domain.Provider) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, fmt.Errorf("Calculate: %w", domain.ErrInvalidAmount)
	}

	sched, ok := c.schedules[provider]
	if !ok {
		return Breakdown{}, fmt.Errorf("Calculate: no fee schedule for %q: %w", provider, domain.ErrWrongProviderForCurrency)
	}

	fixed := int64(0)
	if sched.FixedReference > 0 {
		converted, err := c.rates.ConvertFromReference(sched.FixedReference, currency)
		if err != nil {
			return Breakdown{}, fmt.Errorf("Calculate: %w", err)
		}
		fixed = converted
	}

	fee := decimal.NewFromInt(amount).Mul(sched.Percent).Round(0).IntPart() + fixed
	if fee < 0 {
		fee = 0
	}
	if fee > amount {
		fee = amount
	}

	return Breakdown{
		Gross: amount,
		Fees:  fee,
		Net:   amount - fee,
	}, nil
}
