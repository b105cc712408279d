package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/chainfund-payouts/internal/repository"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	DefaultCurrency    string             `env:"DEFAULT_CURRENCY" envDefault:"NGN"`
	ReferenceCurrency  string             `env:"REFERENCE_CURRENCY" envDefault:"USD"`
	FXRates            map[string]float64 `env:"FX_RATES" envKeyValSeparator:":" envSeparator:"," envDefault:"USD:1,EUR:1.087,GBP:1.266,CAD:0.73,NGN:0.00065,GHS:0.064,ZAR:0.054,KES:0.0077"`
	MinPayoutReference int64              `env:"MIN_PAYOUT_REFERENCE" envDefault:"0"`

	PayoutRequestTimeout time.Duration `env:"PAYOUT_REQUEST_TIMEOUT" envDefault:"15s"`
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	PaystackSecretKey string `env:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string `env:"PAYSTACK_BASE_URL" envDefault:"https://api.paystack.co"`

	StripeSecretKey        string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string `env:"STRIPE_WEBHOOK_SECRET"`
	StripeBaseURL          string `env:"STRIPE_BASE_URL" envDefault:"https://api.stripe.com"`
	StripeConnectedAccount string `env:"STRIPE_CONNECTED_ACCOUNT"`
	StripeBankCountry      string `env:"STRIPE_BANK_COUNTRY" envDefault:"US"`

	ReconcileEnabled     bool          `env:"RECONCILE_ENABLED" envDefault:"true"`
	ReconcileSchedule    string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 15m"`
	DispatchClaimTimeout time.Duration `env:"DISPATCH_CLAIM_TIMEOUT" envDefault:"15m"`
	WebhookRetryInterval time.Duration `env:"WEBHOOK_RETRY_INTERVAL" envDefault:"30s"`
	WebhookMaxAttempts   int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"10"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"payouts@chainfund.local"`

	AMQPURL  string `env:"AMQP_URL"`
	RedisURL string `env:"REDIS_URL"`

	PayoutRateLimit  int           `env:"PAYOUT_RATE_LIMIT" envDefault:"5"`
	PayoutRateWindow time.Duration `env:"PAYOUT_RATE_WINDOW" envDefault:"1m"`

	DB repository.PoolConfig `envPrefix:"DB_"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if len(cfg.FXRates) == 0 {
		return nil, fmt.Errorf("config.Load: FX_RATES must not be empty")
	}
	if _, ok := cfg.FXRates[cfg.ReferenceCurrency]; !ok {
		return nil, fmt.Errorf("config.Load: FX_RATES has no entry for reference currency %s", cfg.ReferenceCurrency)
	}
	return &cfg, nil
}
