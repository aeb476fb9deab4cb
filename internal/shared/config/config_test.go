package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "market-service")

	cfg := Load()

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.Equal(t, "market_events", cfg.TopicMarketEvents)
	assert.Equal(t, "market_updates", cfg.RedisPubSubChannel)
	assert.Equal(t, "100", cfg.BetStake.String())
	assert.Equal(t, "1000", cfg.StartingBalance.String())
	assert.Equal(t, 30*time.Second, cfg.EventCacheTTL)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
	assert.True(t, cfg.SeedEvents)
	assert.Empty(t, cfg.AdminEmails)
	assert.Equal(t, devSessionSecret, cfg.SessionSecret)
}

func TestSessionSecretHasNoDefaultOutsideLocal(t *testing.T) {
	t.Setenv("SERVICE_NAME", "market-service")

	for _, env := range []string{"prod", "dev"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv("ENV", env)
			assert.Empty(t, Load().SessionSecret)

			t.Setenv("SESSION_SECRET", "s3cr3t")
			assert.Equal(t, "s3cr3t", Load().SessionSecret)
		})
	}

	t.Setenv("ENV", "test")
	assert.Equal(t, devSessionSecret, Load().SessionSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "outbox-relay")
	t.Setenv("BET_STAKE", "25.50")
	t.Setenv("STARTING_BALANCE", "not-a-number")
	t.Setenv("ADMIN_EMAILS", " Root@Example.com, ,ops@example.com")
	t.Setenv("ALLOWED_EMAIL_DOMAIN", " Example.COM ")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("SEED_EVENTS", "false")

	cfg := Load()

	assert.Equal(t, "", cfg.HTTPPort)
	assert.Equal(t, "9097", cfg.MetricsPort)
	assert.Equal(t, "25.5", cfg.BetStake.String())
	assert.Equal(t, "1000", cfg.StartingBalance.String(), "invalid value falls back to default")
	require.Len(t, cfg.AdminEmails, 2)
	assert.Equal(t, []string{"root@example.com", "ops@example.com"}, cfg.AdminEmails)
	assert.Equal(t, "example.com", cfg.AllowedEmailDomain)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.False(t, cfg.SeedEvents)
}
