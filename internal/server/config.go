// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the hangout service.
package server

import (
	"flag"
	"fmt"
	"strings"
	"time"

	platformconfig "github.com/Tyrowin/hangout/internal/platform/config"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST" envDefault:"30"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `env:"HANGOUT_PORT" envDefault:":8080"`
	AllowedOrigins []string        `env:"HANGOUT_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:8080"`
	MaxMessageSize int64           `env:"HANGOUT_MAX_MESSAGE_SIZE" envDefault:"1048576"`
	RateLimit      RateLimitConfig `envPrefix:"HANGOUT_RATE_LIMIT_"`

	TypingTTL   time.Duration `env:"HANGOUT_TYPING_TTL" envDefault:"3s"`
	DefaultRoom string        `env:"HANGOUT_DEFAULT_ROOM" envDefault:"main"`

	DBPath           string        `env:"HANGOUT_DB_PATH" envDefault:"data/hangout.db"`
	MessageRetention time.Duration `env:"HANGOUT_MESSAGE_RETENTION" envDefault:"0s"`
	PurgeInterval    time.Duration `env:"HANGOUT_PURGE_INTERVAL" envDefault:"1h"`

	AdminSecret string `env:"HANGOUT_ADMIN_SECRET"`
	AdminIssuer string `env:"HANGOUT_ADMIN_ISSUER" envDefault:"hangout"`

	GifAPIKey  string `env:"HANGOUT_GIF_API_KEY"`
	GifBaseURL string `env:"HANGOUT_GIF_BASE_URL"`

	OTelEndpoint    string        `env:"HANGOUT_OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"HANGOUT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 1 << 20
	defaultBurst          = 30
	defaultDefaultRoom    = "main"
	defaultPurgeInterval  = time.Hour
	defaultShutdown       = 10 * time.Second
)

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:           defaultPort,
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		DefaultRoom:     defaultDefaultRoom,
		TypingTTL:       3 * time.Second,
		DBPath:          "data/hangout.db",
		PurgeInterval:   defaultPurgeInterval,
		AdminIssuer:     "hangout",
		ShutdownTimeout: defaultShutdown,
	}
}

// LoadConfigFromEnv reads HANGOUT_* environment variables. Unset variables
// take their defaults; malformed values are an error.
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := platformconfig.ParseEnv(&cfg); err != nil {
		return nil, err
	}
	sanitized := cfg.sanitized()
	return &sanitized, nil
}

// sanitized replaces unusable values with defaults and normalizes origins.
func (cfg Config) sanitized() Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = defaultDefaultRoom
	}

	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = defaultPurgeInterval
	}

	if cfg.MessageRetention < 0 {
		cfg.MessageRetention = 0
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// ParseConfig reads the environment and then overlays command-line flags.
func ParseConfig(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	origins := strings.Join(cfg.AllowedOrigins, ",")
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen address")
	fs.StringVar(&origins, "allowed-origins", origins, "comma-separated WebSocket origin allow-list, * for any")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.DefaultRoom, "default-room", cfg.DefaultRoom, "public room created at start-up")
	fs.DurationVar(&cfg.TypingTTL, "typing-ttl", cfg.TypingTTL, "typing indicator lifetime")
	fs.DurationVar(&cfg.MessageRetention, "retention", cfg.MessageRetention, "delete messages older than this, 0 keeps them forever")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint, empty disables tracing")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	cfg.AllowedOrigins = splitList(origins)
	sanitized := cfg.sanitized()
	return &sanitized, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
