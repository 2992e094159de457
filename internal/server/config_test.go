package server

import (
	"flag"
	"io"
	"reflect"
	"testing"
	"time"
)

// TestLoadConfigFromEnvDefaults tests the defaults applied when nothing is set.
func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	expected := NewConfig()
	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf("Expected defaults %+v, got %+v", expected, cfg)
	}
}

// TestLoadConfigFromEnvOverrides tests HANGOUT_* variables, including the
// nested rate-limit prefix.
func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("HANGOUT_PORT", ":9999")
	t.Setenv("HANGOUT_ALLOWED_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("HANGOUT_TYPING_TTL", "750ms")
	t.Setenv("HANGOUT_RATE_LIMIT_BURST", "5")
	t.Setenv("HANGOUT_RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("HANGOUT_MESSAGE_RETENTION", "72h")
	t.Setenv("HANGOUT_ADMIN_SECRET", "s3cret")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Port != ":9999" {
		t.Errorf("Expected port :9999, got %q", cfg.Port)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.test", "https://b.test"}) {
		t.Errorf("Unexpected origins %q", cfg.AllowedOrigins)
	}
	if cfg.TypingTTL != 750*time.Millisecond {
		t.Errorf("Expected typing TTL 750ms, got %s", cfg.TypingTTL)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("Unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.MessageRetention != 72*time.Hour {
		t.Errorf("Expected retention 72h, got %s", cfg.MessageRetention)
	}
	if cfg.AdminSecret != "s3cret" {
		t.Errorf("Expected admin secret to be loaded")
	}
}

// TestLoadConfigFromEnvRejectsMalformedValues tests parse failures.
func TestLoadConfigFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("HANGOUT_TYPING_TTL", "soon")

	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("Expected an error for a malformed duration")
	}
}

// TestSanitizedReplacesUnusableValues tests the fallback to defaults.
func TestSanitizedReplacesUnusableValues(t *testing.T) {
	cfg := Config{
		MaxMessageSize:   -1,
		RateLimit:        RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		MessageRetention: -time.Hour,
	}.sanitized()

	if cfg.Port != defaultPort {
		t.Errorf("Expected default port, got %q", cfg.Port)
	}
	if cfg.MaxMessageSize != defaultMaxMessageSize {
		t.Errorf("Expected default max message size, got %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != defaultBurst || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("Expected default rate limit, got %+v", cfg.RateLimit)
	}
	if cfg.DefaultRoom != defaultDefaultRoom {
		t.Errorf("Expected default room %q, got %q", defaultDefaultRoom, cfg.DefaultRoom)
	}
	if cfg.MessageRetention != 0 {
		t.Errorf("Expected negative retention to disable purging, got %s", cfg.MessageRetention)
	}
}

// TestSanitizedCopiesOrigins tests that callers cannot mutate a sanitized
// config through the original slice.
func TestSanitizedCopiesOrigins(t *testing.T) {
	origins := []string{"https://a.test"}
	cfg := Config{AllowedOrigins: origins}.sanitized()
	origins[0] = "https://evil.test"

	if cfg.AllowedOrigins[0] != "https://a.test" {
		t.Errorf("Sanitized config shares the caller's slice")
	}
}

// TestParseConfigFlagsOverrideEnv tests that flags win over the environment.
func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("HANGOUT_PORT", ":7000")
	t.Setenv("HANGOUT_DEFAULT_ROOM", "lobby")

	fs := flag.NewFlagSet("hangout", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-port", ":7001",
		"-allowed-origins", "https://x.test,,https://y.test",
		"-typing-ttl", "1s",
		"-db", "/tmp/h.db",
	})
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	if cfg.Port != ":7001" {
		t.Errorf("Expected flag port :7001, got %q", cfg.Port)
	}
	if cfg.DefaultRoom != "lobby" {
		t.Errorf("Expected env default room lobby, got %q", cfg.DefaultRoom)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://x.test", "https://y.test"}) {
		t.Errorf("Unexpected origins %q", cfg.AllowedOrigins)
	}
	if cfg.TypingTTL != time.Second || cfg.DBPath != "/tmp/h.db" {
		t.Errorf("Unexpected flag values %+v", cfg)
	}
}

// TestParseConfigRejectsUnknownFlag tests flag errors.
func TestParseConfigRejectsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("hangout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := ParseConfig(fs, []string{"-bogus"}); err == nil {
		t.Fatal("Expected an error for an unknown flag")
	}
}
