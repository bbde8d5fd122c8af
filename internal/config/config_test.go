package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/study")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/study", cfg.DBDSN)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReminderPollInterval)
	assert.Equal(t, 25, cfg.ReminderBatchSize)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/study")
	t.Setenv("ENV", "production")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("REMINDER_BATCH_SIZE", "50")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")

	cfg, err := FromViper(newViper())
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, 50, cfg.ReminderBatchSize)
	assert.True(t, cfg.RedisEnabled())
	assert.True(t, cfg.TelegramEnabled())
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")

	_, err := FromViper(newViper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestValidate_NonPositiveDurations(t *testing.T) {
	cfg := &Config{
		DBDSN:                "postgres://localhost/study",
		LockTimeout:          0,
		ReminderPollInterval: -time.Second,
		ReminderBatchSize:    1,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_TIMEOUT")
	assert.Contains(t, err.Error(), "REMINDER_POLL_INTERVAL")
}
