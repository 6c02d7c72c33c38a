package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFieldKey is the shared passphrase used when FIELD_ENCRYPTION_KEY is
// not configured. Devices and the collection server must agree on it.
const DefaultFieldKey = "child-health-secure-key-2025"

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// collection server
	Port        string   `mapstructure:"PORT"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit   string   `mapstructure:"BODY_LIMIT"`

	// shared
	AuthSigningKey     string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer         string        `mapstructure:"AUTH_ISSUER"`
	TokenTTL           time.Duration `mapstructure:"TOKEN_TTL"`
	FieldEncryptionKey string        `mapstructure:"FIELD_ENCRYPTION_KEY"`

	// field agent
	LocalDBPath     string        `mapstructure:"LOCAL_DB_PATH"`
	ServerURL       string        `mapstructure:"SERVER_URL"`
	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
	SyncInterval    time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncMaxAttempts int           `mapstructure:"SYNC_MAX_ATTEMPTS"`
	SyncBaseDelay   time.Duration `mapstructure:"SYNC_BASE_DELAY"`
	ProbeInterval   time.Duration `mapstructure:"PROBE_INTERVAL"`
	AgentListenAddr string        `mapstructure:"AGENT_LISTEN_ADDR"`
}

var keys = []string{
	"ENV", "LOG_LEVEL",
	"PORT", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS", "BODY_LIMIT",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "TOKEN_TTL", "FIELD_ENCRYPTION_KEY",
	"LOCAL_DB_PATH", "SERVER_URL", "HTTP_TIMEOUT", "SYNC_INTERVAL", "SYNC_MAX_ATTEMPTS",
	"SYNC_BASE_DELAY", "PROBE_INTERVAL", "AGENT_LISTEN_ADDR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "3001")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("BODY_LIMIT", "50M")
	v.SetDefault("AUTH_ISSUER", "chr-fieldsync")
	v.SetDefault("TOKEN_TTL", 720*time.Hour)
	v.SetDefault("FIELD_ENCRYPTION_KEY", DefaultFieldKey)
	v.SetDefault("LOCAL_DB_PATH", "./chr-agent.db")
	v.SetDefault("SERVER_URL", "http://localhost:3001/api")
	v.SetDefault("HTTP_TIMEOUT", 15*time.Second)
	v.SetDefault("SYNC_INTERVAL", 30*time.Second)
	v.SetDefault("SYNC_MAX_ATTEMPTS", 3)
	v.SetDefault("SYNC_BASE_DELAY", time.Second)
	v.SetDefault("PROBE_INTERVAL", 5*time.Second)
	v.SetDefault("AGENT_LISTEN_ADDR", "127.0.0.1:7070")

	// Unmarshal only sees env vars that were bound explicitly.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when running with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ValidateServer checks the settings the collection server needs.
func (c *Config) ValidateServer() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return c.validateShared()
}

// ValidateAgent checks the settings a field device needs to collect and sync.
func (c *Config) ValidateAgent() error {
	if c.LocalDBPath == "" {
		return fmt.Errorf("LOCAL_DB_PATH is required")
	}
	if c.ServerURL == "" {
		return fmt.Errorf("SERVER_URL is required")
	}
	if c.SyncMaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be at least 1, got %d", c.SyncMaxAttempts)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if c.SyncBaseDelay < 0 {
		return fmt.Errorf("SYNC_BASE_DELAY must not be negative, got %s", c.SyncBaseDelay)
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("PROBE_INTERVAL must be positive, got %s", c.ProbeInterval)
	}
	return c.validateShared()
}

func (c *Config) validateShared() error {
	if c.IsProduction() {
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters in production")
		}
	}

	// An empty key disables field encryption, which only makes sense locally.
	if c.FieldEncryptionKey == "" && !c.IsDev() {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY may only be empty in development")
	}
	return nil
}

// SigningKey returns the HS256 key used for device credentials. Development
// builds fall back to a fixed key so a fresh checkout works end to end.
func (c *Config) SigningKey() []byte {
	if c.AuthSigningKey == "" && !c.IsProduction() {
		return []byte("chr-fieldsync-development-signing-key")
	}
	return []byte(c.AuthSigningKey)
}
