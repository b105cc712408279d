package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payouts")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "NGN", cfg.DefaultCurrency)
	assert.Equal(t, 15*time.Second, cfg.PayoutRequestTimeout)
	assert.Equal(t, "@every 15m", cfg.ReconcileSchedule)
	assert.InDelta(t, 1.0, cfg.FXRates["USD"], 0)
	assert.InDelta(t, 0.00065, cfg.FXRates["NGN"], 1e-12)
	assert.Zero(t, cfg.MinPayoutReference)
	assert.Equal(t, 15*time.Minute, cfg.DispatchClaimTimeout)
}

func TestLoad_CustomRates(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payouts")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FX_RATES", "USD:1,NGN:0.001")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.FXRates, 2)
	assert.InDelta(t, 0.001, cfg.FXRates["NGN"], 1e-12)
}

func TestLoad_MissingReferenceRate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payouts")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FX_RATES", "NGN:0.001")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_PoolConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/payouts")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_MAX_OPEN_CONNS", "40")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.DB.MaxOpenConns)
	assert.Equal(t, 10, cfg.DB.MaxIdleConns)
	assert.Equal(t, 90*time.Second, cfg.DB.ConnMaxLifetime)
	assert.Equal(t, time.Minute, cfg.DB.ConnMaxIdleTime)
}
