package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, "stripe", cfg.PaymentProvider)
	assert.Equal(t, 3*time.Second, cfg.MessagePublishTimeout)
	assert.Equal(t, 5, cfg.MessageRetryMax)
	assert.Equal(t, 5*time.Minute, cfg.EventClaimLease)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEmpty(t, cfg.StripeWebhookSecret)

	calc, err := cfg.FeeCalculator()
	require.NoError(t, err)
	b, err := calc.Service(500)
	require.NoError(t, err)
	assert.Equal(t, int64(35), b.Fee)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
}

func TestLoad_RejectsBadFeePolicy(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SERVICE_FEE_BPS", "20000")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SERVICE_FEE_BPS", "700")
	t.Setenv("PLATFORM_FEE_FLOOR", "-1")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("PLATFORM_FEE_FLOOR", "abc")
	_, err = Load()
	assert.Error(t, err)
}

func TestFeePolicy(t *testing.T) {
	cfg := &Config{PlatformFeeBPS: 1000, PlatformFeeFloor: 199, ServiceFeeBPS: 700}
	calc, err := cfg.FeeCalculator()
	require.NoError(t, err)

	b, err := calc.Rent(50)
	require.NoError(t, err)
	assert.Equal(t, int64(199), b.Fee)
	assert.Equal(t, int64(0), b.NetToPro)
}

func TestGetDatabaseURL_FromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRESQL_HOST", "db")
	t.Setenv("POSTGRESQL_USER", "app")
	t.Setenv("POSTGRESQL_PASSWORD", "p@ss")
	t.Setenv("POSTGRESQL_DBNAME", "escrow")

	assert.Equal(t, "postgres://app:p%40ss@db:5432/escrow?sslmode=disable", getDatabaseURL())
}
