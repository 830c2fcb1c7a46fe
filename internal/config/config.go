// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN; when empty the engine runs on in-memory stores (dev only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// LocationMaxTries is the retry budget for the geofence stage before the session fails.
	LocationMaxTries int `mapstructure:"LOCATION_MAX_TRIES"`
	// TokenMaxTries is the retry budget for the token stage before the session fails.
	TokenMaxTries int `mapstructure:"TOKEN_MAX_TRIES"`
	// BiometricMaxTries is the retry budget for the biometric stage before the session fails.
	BiometricMaxTries int `mapstructure:"BIOMETRIC_MAX_TRIES"`
	// SessionTimeout is how long a verification session may stay open without finalizing (e.g. "10m").
	// The effective deadline is additionally capped by the lecture's end time.
	SessionTimeout string `mapstructure:"SESSION_TIMEOUT"`

	// TokenMinTTL and TokenMaxTTL bound the TTL a lecture may configure for issued tokens.
	TokenMinTTL string `mapstructure:"TOKEN_MIN_TTL"`
	TokenMaxTTL string `mapstructure:"TOKEN_MAX_TTL"`
	// TokenRetention is how long expired/consumed tokens are kept for audit before the reaper purges them.
	TokenRetention string `mapstructure:"TOKEN_RETENTION"`

	// AuditKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	// When set, stage-transition events are emitted to Kafka for the audit pipeline.
	AuditKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for stage-transition events (default attendance-audit).
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the audit worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki push endpoint for the audit worker (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOCATION_MAX_TRIES", 3)
	v.SetDefault("TOKEN_MAX_TRIES", 3)
	v.SetDefault("BIOMETRIC_MAX_TRIES", 3)
	v.SetDefault("SESSION_TIMEOUT", "10m")
	v.SetDefault("TOKEN_MIN_TTL", "30s")
	v.SetDefault("TOKEN_MAX_TTL", "300s")
	v.SetDefault("TOKEN_RETENTION", "24h")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "attendance-audit")
	v.SetDefault("KAFKA_GROUP_ID", "attendance-audit-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.LocationMaxTries < 1 || cfg.TokenMaxTries < 1 || cfg.BiometricMaxTries < 1 {
		return nil, errors.New("config: retry budgets must be at least 1")
	}
	if cfg.TokenMinTTLDuration() > cfg.TokenMaxTTLDuration() {
		return nil, errors.New("config: TOKEN_MIN_TTL must not exceed TOKEN_MAX_TTL")
	}

	return &cfg, nil
}

// SessionTimeoutDuration parses SessionTimeout. Returns 10m if unset or invalid.
func (c *Config) SessionTimeoutDuration() time.Duration {
	return parseDuration(c.SessionTimeout, 10*time.Minute)
}

// TokenMinTTLDuration parses TokenMinTTL. Returns 30s if unset or invalid.
func (c *Config) TokenMinTTLDuration() time.Duration {
	return parseDuration(c.TokenMinTTL, 30*time.Second)
}

// TokenMaxTTLDuration parses TokenMaxTTL. Returns 300s if unset or invalid.
func (c *Config) TokenMaxTTLDuration() time.Duration {
	return parseDuration(c.TokenMaxTTL, 300*time.Second)
}

// TokenRetentionDuration parses TokenRetention. Returns 24h if unset or invalid.
func (c *Config) TokenRetentionDuration() time.Duration {
	return parseDuration(c.TokenRetention, 24*time.Hour)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AuditKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the audit pipeline is enabled (non-empty list) and to create the producer.
func (c *Config) AuditKafkaBrokersList() []string {
	if c == nil || c.AuditKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AuditKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
