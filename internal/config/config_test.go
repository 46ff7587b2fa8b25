package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickwatch/internal/services"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100*time.Millisecond, cfg.TickPeriod)
	assert.Equal(t, ProbeModeSystem, cfg.ProbeMode)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 60, cfg.HistoryPoints)
	assert.Equal(t, 10*time.Second, cfg.ClientAuthenticatePeriod)
	assert.Equal(t, 16, cfg.ClientAuthenticateBurst)
	assert.Equal(t, 500000, cfg.HTTPBandwidthLimit)
	assert.Equal(t, 1000000, cfg.HTTPBandwidthBurst)
	assert.Empty(t, cfg.HTTPLogLevel)
	assert.Equal(t, "tickwatch:cadence", cfg.Redis.Key)
	assert.Empty(t, cfg.Redis.URL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	t.Setenv("TICKWATCH_TICK_PERIOD", "50ms")
	t.Setenv("TICKWATCH_PROBE_MODE", "fixed")
	t.Setenv("TICKWATCH_HTTP_PORT", "9000")
	t.Setenv("TICKWATCH_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.TickPeriod)
	assert.Equal(t, ProbeModeFixed, cfg.ProbeMode)
	assert.Equal(t, 9000, cfg.ResolvedHTTPPort())
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.TickPeriod = 0
	assert.ErrorIs(t, cfg.Validate(), services.ErrInvalidTickPeriod)

	cfg = base()
	cfg.TickPeriod = -time.Second
	assert.ErrorIs(t, cfg.Validate(), services.ErrInvalidTickPeriod)

	cfg = base()
	cfg.ProbeMode = "proc"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidProbeMode)

	cfg = base()
	cfg.HistoryPoints = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RateLimits(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Config)
	}{
		{"zero api rate", func(c *Config) { c.APIRateLimit = 0 }},
		{"negative api rate", func(c *Config) { c.APIRateLimit = -1 }},
		{"zero api burst", func(c *Config) { c.APIBurst = 0 }},
		{"zero client authenticate period", func(c *Config) { c.ClientAuthenticatePeriod = 0 }},
		{"zero client authenticate burst", func(c *Config) { c.ClientAuthenticateBurst = 0 }},
		{"zero bandwidth", func(c *Config) { c.HTTPBandwidthLimit = 0 }},
		{"negative bandwidth burst", func(c *Config) { c.HTTPBandwidthBurst = -5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.apply(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidRateLimit)
		})
	}
}

func TestValidate_RateLimitFromEnvironment(t *testing.T) {
	t.Setenv("TICKWATCH_API_RATE_LIMIT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidRateLimit)
}

func TestResolvedServerID(t *testing.T) {
	tests := []struct {
		name     string
		serverID int
		hostname string
		want     int
	}{
		{"explicit id wins", 3, "7.example.com", 3},
		{"from hostname label", 0, "7.example.com", 7},
		{"bare number", 0, "12", 12},
		{"non numeric label", 0, "arena.example.com", 0},
		{"empty", 0, "", 0},
		{"out of range", 0, "70000.example.com", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ServerID: tt.serverID, Hostname: tt.hostname}
			assert.Equal(t, tt.want, cfg.ResolvedServerID())
		})
	}
}

func TestListenAddr(t *testing.T) {
	cfg := &Config{HTTPAddress: "127.0.0.1", HTTPPort: 8081}
	assert.Equal(t, "127.0.0.1:8081", cfg.ListenAddr())
}
