// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is wrapped by every validation failure returned from Load.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// MinSecretLength is the minimum accepted length of JWT_SECRET in bytes.
const MinSecretLength = 32

// Session store backends selectable via SESSION_STORE.
const (
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
	StoreMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN; empty runs users and sessions in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// SessionStore selects the session record backend: postgres, bolt or memory.
	SessionStore string `mapstructure:"SESSION_STORE"`
	// BoltPath is the bbolt database file used when SessionStore is bolt.
	BoltPath string `mapstructure:"BOLT_PATH"`

	// JWTSecret is the HMAC-SHA256 signing secret. Required.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim (e.g. "kriptoproyek-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "kriptoproyek-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTExpiryMinutes is the credential lifetime in minutes.
	JWTExpiryMinutes int `mapstructure:"JWT_EXPIRY_MINUTES"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// StoreTimeout bounds every session store call (e.g. "3s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`
	// SweepSchedule is a cron spec for the expiry sweeper (e.g. "@every 1h").
	SweepSchedule string `mapstructure:"SWEEP_SCHEDULE"`
	// SweepRetryInterval is the delay before retrying a failed sweep (e.g. "5m").
	SweepRetryInterval string `mapstructure:"SWEEP_RETRY_INTERVAL"`

	// LockoutMaxAttempts is the number of failed logins before the account is locked.
	LockoutMaxAttempts int `mapstructure:"LOCKOUT_MAX_ATTEMPTS"`
	// LockoutDuration is how long an account stays locked (e.g. "15m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`
	// RedisAddr enables the Redis-backed lockout counters when set (e.g. "localhost:6379").
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP gRPC collector address; empty disables exporters.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses for session events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session lifecycle events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
func Load() (*Config, error) {
	cfg, err := unmarshal(newViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore is Load restricted to what session store tooling needs: store selection,
// credential lifetime, store timeout and logging. Signing and listener settings are
// not validated, so JWT_SECRET may be absent.
func LoadStore() (*Config, error) {
	cfg, err := unmarshal(newViper())
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseURL returns DATABASE_URL from .env or the environment without validating
// anything else. Used by the migrate binary, which needs no signing secret.
func LoadDatabaseURL() string {
	return strings.TrimSpace(newViper().GetString("DATABASE_URL"))
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_STORE", "")
	v.SetDefault("BOLT_PATH", "sessions.db")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "kriptoproyek-auth")
	v.SetDefault("JWT_AUDIENCE", "kriptoproyek-api")
	v.SetDefault("JWT_EXPIRY_MINUTES", 60)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("STORE_TIMEOUT", "3s")
	v.SetDefault("SWEEP_SCHEDULE", "@every 1h")
	v.SetDefault("SWEEP_RETRY_INTERVAL", "5m")
	v.SetDefault("LOCKOUT_MAX_ATTEMPTS", 5)
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "session-events")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return invalid("HTTP_ADDR must be set")
	}
	if c.JWTSecret == "" {
		return invalid("JWT_SECRET must be set")
	}
	if len(c.JWTSecret) < MinSecretLength {
		return invalid(fmt.Sprintf("JWT_SECRET must be at least %d bytes", MinSecretLength))
	}
	if strings.TrimSpace(c.JWTIssuer) == "" || strings.TrimSpace(c.JWTAudience) == "" {
		return invalid("JWT_ISSUER and JWT_AUDIENCE must be set")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return invalid("BCRYPT_COST must be between 4 and 31")
	}
	if c.LockoutMaxAttempts <= 0 {
		return invalid("LOCKOUT_MAX_ATTEMPTS must be positive")
	}
	return c.validateStore()
}

// validateStore checks the session store settings and resolves an empty SESSION_STORE.
func (c *Config) validateStore() error {
	if c.JWTExpiryMinutes <= 0 {
		return invalid("JWT_EXPIRY_MINUTES must be positive")
	}
	switch c.SessionStore {
	case "":
		if c.DatabaseURL != "" {
			c.SessionStore = StorePostgres
		} else {
			c.SessionStore = StoreMemory
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("SESSION_STORE=postgres requires DATABASE_URL")
		}
	case StoreBolt:
		if c.BoltPath == "" {
			return invalid("SESSION_STORE=bolt requires BOLT_PATH")
		}
	case StoreMemory:
	default:
		return invalid("SESSION_STORE must be one of postgres, bolt, memory")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

// JWTExpiry returns the credential lifetime.
func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryMinutes) * time.Minute
}

// StoreCallTimeout parses StoreTimeout. Returns 3s if unset or invalid.
func (c *Config) StoreCallTimeout() time.Duration {
	return parseDuration(c.StoreTimeout, 3*time.Second)
}

// SweepRetry parses SweepRetryInterval. Returns 5m if unset or invalid.
func (c *Config) SweepRetry() time.Duration {
	return parseDuration(c.SweepRetryInterval, 5*time.Minute)
}

// LockoutWindow parses LockoutDuration. Returns 15m if unset or invalid.
func (c *Config) LockoutWindow() time.Duration {
	return parseDuration(c.LockoutDuration, 15*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka session event producer.
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
