package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "medtrans:realtime", cfg.RedisChannel)
	assert.Equal(t, 20, cfg.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.DriverTokens)
}

func TestLoadConfigEnvThenFlags(t *testing.T) {
	t.Setenv("MEDTRANS_BENCH_BASE_URL", "http://api.local:9000/")
	t.Setenv("MEDTRANS_BENCH_CONCURRENCY", "8")
	t.Setenv("MEDTRANS_BENCH_DRIVER_TOKENS", "tok-a, tok-b")
	t.Setenv("MEDTRANS_REDIS_CHANNEL", "medtrans:staging")

	cfg, err := loadConfig([]string{"-concurrency", "4", "-strict"})
	require.NoError(t, err)
	assert.Equal(t, "http://api.local:9000", cfg.BaseURL)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "medtrans:staging", cfg.RedisChannel)
	assert.Equal(t, []string{"tok-a", "tok-b"}, cfg.DriverTokens)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("MEDTRANS_BENCH_CONCURRENCY", "many")
	_, err := loadConfig(nil)
	require.Error(t, err)
}

func TestLoadConfigRejectsNonPositiveConcurrency(t *testing.T) {
	_, err := loadConfig([]string{"-concurrency", "0"})
	require.Error(t, err)
}
