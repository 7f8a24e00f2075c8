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
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// Env is the application environment ("development", "production"). Cookies are Secure outside development.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the redis:// URL backing the login and MFA rate limiters.
	RedisURL string `mapstructure:"REDIS_URL"`

	// AuthSecret is the master HMAC secret (inline or path to file). Per-purpose signing keys are derived from it.
	AuthSecret string `mapstructure:"AUTH_SECRET"`
	// FingerprintSalt salts device fingerprints and the ip/user-agent hashes stored on sessions.
	FingerprintSalt string `mapstructure:"FINGERPRINT_SALT"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SessionMaxAgeRaw is the session token lifetime (e.g. "168h").
	SessionMaxAgeRaw string `mapstructure:"SESSION_MAX_AGE"`
	// SessionTouchIntervalRaw throttles last_seen_at updates (default 5m).
	SessionTouchIntervalRaw string `mapstructure:"SESSION_TOUCH_INTERVAL"`
	// MFAAssertionTTLRaw is the MFA enforcement assertion lifetime (default 12h).
	MFAAssertionTTLRaw string `mapstructure:"MFA_ASSERTION_TTL"`
	// ReauthMaxAgeRaw is the default recency window for sensitive operations (default 10m).
	ReauthMaxAgeRaw string `mapstructure:"REAUTH_MAX_AGE"`
	// ImpersonationTTLRaw is the lifetime of an impersonation grant (default 1h).
	ImpersonationTTLRaw string `mapstructure:"IMPERSONATION_TTL"`
	// StoreTimeoutRaw bounds persistence calls on the credential and MFA paths (default 3s).
	StoreTimeoutRaw string `mapstructure:"STORE_TIMEOUT"`

	// LoginIPLimit is the number of login attempts allowed per IP per RateWindow.
	LoginIPLimit int `mapstructure:"LOGIN_IP_LIMIT"`
	// LoginEmailLimit is the number of login attempts allowed per normalized email per RateWindow.
	LoginEmailLimit int `mapstructure:"LOGIN_EMAIL_LIMIT"`
	// MFAAttemptLimit is the number of MFA verification attempts allowed per user per RateWindow.
	MFAAttemptLimit int `mapstructure:"MFA_ATTEMPT_LIMIT"`
	// RateWindowRaw is the fixed rate-limit window (default 1m).
	RateWindowRaw string `mapstructure:"RATE_WINDOW"`

	// TOTPIssuer is shown in authenticator apps during enrollment.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`

	// Access events (optional). When Kafka brokers are set, access events are also published to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AccessEventTopic is the Kafka topic for access events.
	AccessEventTopic string `mapstructure:"ACCESS_EVENT_TOPIC"`
	// AuditBufferSize is the capacity of the async access-event queue.
	AuditBufferSize int `mapstructure:"AUDIT_BUFFER_SIZE"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. "localhost:4317").
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS towards the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Worker-only: Loki URL for the access-event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the access-event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
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
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("FINGERPRINT_SALT", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SESSION_MAX_AGE", "168h")
	v.SetDefault("SESSION_TOUCH_INTERVAL", "5m")
	v.SetDefault("MFA_ASSERTION_TTL", "12h")
	v.SetDefault("REAUTH_MAX_AGE", "10m")
	v.SetDefault("IMPERSONATION_TTL", "1h")
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("LOGIN_IP_LIMIT", 30)
	v.SetDefault("LOGIN_EMAIL_LIMIT", 10)
	v.SetDefault("MFA_ATTEMPT_LIMIT", 5)
	v.SetDefault("RATE_WINDOW", "1m")
	v.SetDefault("TOTP_ISSUER", "Back Office")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ACCESS_EVENT_TOPIC", "backoffice-access-events")
	v.SetDefault("AUDIT_BUFFER_SIZE", 1024)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "backoffice-access-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.LoginIPLimit < 0 || cfg.LoginEmailLimit < 0 || cfg.MFAAttemptLimit < 0 {
		return nil, errors.New("config: rate limits must not be negative")
	}

	if cfg.IsProduction() {
		if cfg.AuthSecret == "" {
			return nil, errors.New("config: AUTH_SECRET must be set when APP_ENV=production")
		}
		if cfg.FingerprintSalt == "" {
			return nil, errors.New("config: FINGERPRINT_SALT must be set when APP_ENV=production")
		}
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SecureCookies is true everywhere except development.
func (c *Config) SecureCookies() bool {
	return !strings.EqualFold(c.Env, "development")
}

// SessionMaxAge parses SessionMaxAgeRaw. Returns 168h if unset or invalid.
func (c *Config) SessionMaxAge() time.Duration {
	return parseDuration(c.SessionMaxAgeRaw, 168*time.Hour)
}

// SessionTouchInterval parses SessionTouchIntervalRaw. Returns 5m if unset or invalid.
func (c *Config) SessionTouchInterval() time.Duration {
	return parseDuration(c.SessionTouchIntervalRaw, 5*time.Minute)
}

// MFAAssertionTTL parses MFAAssertionTTLRaw. Returns 12h if unset or invalid.
func (c *Config) MFAAssertionTTL() time.Duration {
	return parseDuration(c.MFAAssertionTTLRaw, 12*time.Hour)
}

// ReauthMaxAge parses ReauthMaxAgeRaw. Returns 10m if unset or invalid.
func (c *Config) ReauthMaxAge() time.Duration {
	return parseDuration(c.ReauthMaxAgeRaw, 10*time.Minute)
}

// ImpersonationTTL parses ImpersonationTTLRaw. Returns 1h if unset or invalid.
func (c *Config) ImpersonationTTL() time.Duration {
	return parseDuration(c.ImpersonationTTLRaw, time.Hour)
}

// StoreTimeout parses StoreTimeoutRaw. Returns 3s if unset or invalid.
func (c *Config) StoreTimeout() time.Duration {
	return parseDuration(c.StoreTimeoutRaw, 3*time.Second)
}

// RateWindow parses RateWindowRaw. Returns 1m if unset or invalid.
func (c *Config) RateWindow() time.Duration {
	return parseDuration(c.RateWindowRaw, time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka access-event sink is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
