package provider

import (
	"fmt"

	"github.com/josh-kwaku/chainfund-payouts/internal/domain"
)

var paystackCurrencies = map[domain.Currency]bool{
	domain.CurrencyNGN: true,
	domain.CurrencyGHS: true,
	domain.CurrencyZAR: true,
	domain.CurrencyKES: true,
}

// ForCurrency is the static currency routing table: African currencies go to
// Paystack, everything else to Stripe.
func ForCurrency(c domain.Currency) domain.Provider {
	if paystackCurrencies[c] {
		return domain.ProviderPaystack
	}
	return domain.ProviderStripe
}

type Router struct {
	adapters map[domain.Provider]Adapter
}

func NewRouter(adapters ...Adapter) *Router {
	r := &Router{adapters: make(map[domain.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Router) ProviderFor(c domain.Currency) domain.Provider {
	return ForCurrency(c)
}

func (r *Router) Adapter(name domain.Provider) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("Adapter: %q: %w", name, ErrUnknownProvider)
	}
	return a, nil
}
