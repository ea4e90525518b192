package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "coinsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadClient_DefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadClient("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Account.ID)
	assert.Equal(t, 8, cfg.Queue.MaxAttempts)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.Cooldown)
	assert.Equal(t, 200, cfg.History.Limit)
}

func TestLoadClient_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
account:
  id: player-7
backend:
  base_url: http://localhost:8080
  request_timeout: 3s
queue:
  max_attempts: 4
breaker:
  failure_threshold: 2
  cooldown: 1m
`)

	t.Setenv("COINSYNC_BREAKER_THRESHOLD", "9")

	cfg, err := LoadClient(path)
	require.NoError(t, err)

	assert.Equal(t, "player-7", cfg.Account.ID)
	assert.Equal(t, "http://localhost:8080", cfg.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, 4, cfg.Queue.MaxAttempts)
	assert.Equal(t, 9, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.Cooldown)
	// untouched sections keep their defaults
	assert.Equal(t, time.Second, cfg.Queue.BaseDelay)
	assert.Equal(t, "@every 30s", cfg.Queue.SyncSchedule)
}

func TestClient_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Client)
	}{
		{name: "empty_account", mutate: func(c *Client) { c.Account.ID = "" }},
		{name: "bad_backend_url", mutate: func(c *Client) { c.Backend.BaseURL = "ftp://x" }},
		{name: "zero_attempts", mutate: func(c *Client) { c.Queue.MaxAttempts = 0 }},
		{name: "max_below_base", mutate: func(c *Client) { c.Queue.MaxDelay = time.Millisecond }},
		{name: "bad_schedule", mutate: func(c *Client) { c.Queue.SyncSchedule = "every now and then" }},
		{name: "zero_threshold", mutate: func(c *Client) { c.Breaker.FailureThreshold = 0 }},
		{name: "zero_cooldown", mutate: func(c *Client) { c.Breaker.Cooldown = 0 }},
		{name: "zero_history", mutate: func(c *Client) { c.History.Limit = 0 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultClient()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	def := DefaultClient()
	require.NoError(t, def.Validate())
}
