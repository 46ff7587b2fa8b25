package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"tickwatch/internal/services"
)

// EnvPrefix is prepended to every environment variable name below.
const EnvPrefix = "TICKWATCH_"

const (
	ProbeModeSystem = "system"
	ProbeModeFixed  = "fixed"

	StandardHTTPPort     = 80
	UnprivilegedHTTPPort = 8080
)

var (
	ErrInvalidProbeMode = errors.New("probe mode must be system or fixed")
	ErrInvalidRateLimit = errors.New("rate limits and bursts must be positive")
)

// Config holds all process configuration
type Config struct {
	// Server identity
	ServerID int    `env:"SERVER_ID"`
	Hostname string `env:"HOSTNAME"`

	// HTTP settings. A zero port picks 80 when running as root, 8080 otherwise.
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:"0.0.0.0"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"0"`

	// Nominal duration of one tick of the host loop
	TickPeriod time.Duration `env:"TICK_PERIOD" envDefault:"100ms"`

	// Resource probing
	ProbeMode    string        `env:"PROBE_MODE" envDefault:"system"`
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT" envDefault:"2s"`

	// Telemetry
	ExportInterval    time.Duration `env:"EXPORT_INTERVAL" envDefault:"60s"`
	HistoryPoints     int           `env:"HISTORY_POINTS" envDefault:"60"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"1s"`

	// Logging
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`

	// Level for request logs. Empty inherits LogLevel.
	HTTPLogLevel string `env:"HTTP_LOG_LEVEL"`

	// Auth
	JWTSecret   string        `env:"JWT_SECRET"`
	TokenExpiry time.Duration `env:"TOKEN_EXPIRY" envDefault:"2160h"`

	// Rate limiting
	APIRateLimit             float64       `env:"API_RATE_LIMIT" envDefault:"100"`
	APIBurst                 int           `env:"API_BURST" envDefault:"200"`
	ClientAuthenticatePeriod time.Duration `env:"CLIENT_AUTHENTICATE_RATE_LIMIT" envDefault:"10s"`
	ClientAuthenticateBurst  int           `env:"CLIENT_AUTHENTICATE_BURST" envDefault:"16"`

	// Bytes per second and per IP through the HTTP server
	HTTPBandwidthLimit int `env:"HTTP_BANDWIDTH_LIMIT" envDefault:"500000"`
	HTTPBandwidthBurst int `env:"HTTP_BANDWIDTH_BURST" envDefault:"1000000"`

	// Optional history persistence
	Redis RedisConfig

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RedisConfig holds the cadence history sink settings. An empty URL disables it.
type RedisConfig struct {
	URL    string `env:"REDIS_URL"`
	Key    string `env:"REDIS_KEY" envDefault:"tickwatch:cadence"`
	MaxLen int64  `env:"REDIS_MAX_LEN" envDefault:"1440"`
}

// Load reads .env (if present) and the process environment. It does not
// validate, so command line flags can still override fields first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the monitor cannot run with.
func (c *Config) Validate() error {
	if c.TickPeriod <= 0 {
		return fmt.Errorf("%w: got %s", services.ErrInvalidTickPeriod, c.TickPeriod)
	}
	switch c.ProbeMode {
	case ProbeModeSystem, ProbeModeFixed:
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidProbeMode, c.ProbeMode)
	}
	if c.HistoryPoints < 1 {
		return fmt.Errorf("history points must be at least 1, got %d", c.HistoryPoints)
	}
	if c.ExportInterval <= 0 || c.BroadcastInterval <= 0 {
		return errors.New("export and broadcast intervals must be positive")
	}
	switch {
	case c.APIRateLimit <= 0 || c.APIBurst <= 0:
		return fmt.Errorf("%w: api %g/s burst %d", ErrInvalidRateLimit, c.APIRateLimit, c.APIBurst)
	case c.ClientAuthenticatePeriod <= 0 || c.ClientAuthenticateBurst <= 0:
		return fmt.Errorf("%w: client authenticate every %s burst %d",
			ErrInvalidRateLimit, c.ClientAuthenticatePeriod, c.ClientAuthenticateBurst)
	case c.HTTPBandwidthLimit <= 0 || c.HTTPBandwidthBurst <= 0:
		return fmt.Errorf("%w: bandwidth %d B/s burst %d", ErrInvalidRateLimit, c.HTTPBandwidthLimit, c.HTTPBandwidthBurst)
	}
	return nil
}

// ResolvedServerID returns ServerID, or the number in the first label of
// Hostname (e.g. "7.example.com" -> 7). Zero means unknown.
func (c *Config) ResolvedServerID() int {
	if c.ServerID > 0 {
		return c.ServerID
	}
	if c.Hostname == "" {
		return 0
	}
	label, _, _ := strings.Cut(c.Hostname, ".")
	id, err := strconv.Atoi(label)
	if err != nil || id <= 0 || id > math.MaxUint16 {
		return 0
	}
	return id
}

// ResolvedHTTPPort returns the configured port or the default for the
// current privilege level.
func (c *Config) ResolvedHTTPPort() int {
	if c.HTTPPort > 0 {
		return c.HTTPPort
	}
	if os.Geteuid() == 0 {
		return StandardHTTPPort
	}
	return UnprivilegedHTTPPort
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPAddress, c.ResolvedHTTPPort())
}
