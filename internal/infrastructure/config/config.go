package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Identity  IdentityConfig
	Index     IndexConfig
	Profiles  ProfilesConfig
	Seed      SeedConfig
	Events    EventsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// CORSOrigins lists browser origins allowed to call the API
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SessionConfig holds session authority configuration.
type SessionConfig struct {
	TTL           time.Duration `envconfig:"SESSION_TTL" default:"0s"`
	Shards        int           `envconfig:"SESSION_SHARDS" default:"32"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
}

// IdentityConfig holds identity backend configuration.
type IdentityConfig struct {
	UsersFile  string `envconfig:"IDENTITY_USERS_FILE"`
	BcryptCost int    `envconfig:"IDENTITY_BCRYPT_COST" default:"10"`
}

// IndexConfig holds match index configuration.
type IndexConfig struct {
	OpTimeout      time.Duration `envconfig:"INDEX_OP_TIMEOUT" default:"30s"`
	ScanWorkers    int           `envconfig:"INDEX_SCAN_WORKERS" default:"8"`
	SnapshotPath   string        `envconfig:"INDEX_SNAPSHOT_PATH"`
	RefreshOnStart bool          `envconfig:"INDEX_REFRESH_ON_START" default:"true"`
	MatchScript    string        `envconfig:"INDEX_MATCH_SCRIPT"`
	MatchTimeout   time.Duration `envconfig:"INDEX_MATCH_TIMEOUT" default:"100ms"`
}

// ProfilesConfig selects where service profiles come from.
type ProfilesConfig struct {
	Source        string        `envconfig:"PROFILE_SOURCE" default:"local"`
	RemoteURL     string        `envconfig:"PROFILE_REMOTE_URL"`
	RemoteToken   string        `envconfig:"PROFILE_REMOTE_TOKEN"`
	RemoteTimeout time.Duration `envconfig:"PROFILE_REMOTE_TIMEOUT" default:"10s"`
	RemoteRPS     float64       `envconfig:"PROFILE_REMOTE_RPS" default:"0"`
}

// SeedConfig holds registry seeding configuration.
type SeedConfig struct {
	Dir     string `envconfig:"SEED_DIR"`
	Pattern string `envconfig:"SEED_PATTERN" default:"**/*.{yaml,yml}"`
}

// EventsConfig holds index event publishing configuration.
type EventsConfig struct {
	NATSURL     string `envconfig:"EVENTS_NATS_URL"`
	NATSSubject string `envconfig:"EVENTS_NATS_SUBJECT" default:"registry.index"`
	BufferSize  int    `envconfig:"EVENTS_BUFFER" default:"64"`
}

// Profile source kinds.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8000",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Session: SessionConfig{
			Shards:        32,
			SweepInterval: time.Minute,
		},
		Identity: IdentityConfig{
			BcryptCost: 10,
		},
		Index: IndexConfig{
			OpTimeout:      30 * time.Second,
			ScanWorkers:    8,
			RefreshOnStart: true,
			MatchTimeout:   100 * time.Millisecond,
		},
		Profiles: ProfilesConfig{
			Source:        SourceLocal,
			RemoteTimeout: 10 * time.Second,
		},
		Seed: SeedConfig{
			Pattern: "**/*.{yaml,yml}",
		},
		Events: EventsConfig{
			NATSSubject: "registry.index",
			BufferSize:  64,
		},
	}
}

// Validate rejects impossible combinations with a Configuration error.
func (c *Config) Validate() error {
	const op = "config.Validate"

	if c.Server.Port == "" {
		return fault.New(fault.Configuration, op, "PORT is required")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fault.New(fault.Configuration, op, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if c.Session.TTL < 0 {
		return fault.New(fault.Configuration, op, "SESSION_TTL must not be negative")
	}
	if c.Session.Shards <= 0 {
		return fault.New(fault.Configuration, op, "SESSION_SHARDS must be positive")
	}
	if c.Index.OpTimeout < 0 {
		return fault.New(fault.Configuration, op, "INDEX_OP_TIMEOUT must not be negative")
	}
	if c.Index.ScanWorkers <= 0 {
		return fault.New(fault.Configuration, op, "INDEX_SCAN_WORKERS must be positive")
	}
	if c.Index.MatchTimeout < 0 {
		return fault.New(fault.Configuration, op, "INDEX_MATCH_TIMEOUT must not be negative")
	}

	switch c.Profiles.Source {
	case SourceLocal:
	case SourceRemote:
		u, err := url.Parse(c.Profiles.RemoteURL)
		if c.Profiles.RemoteURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			return fault.New(fault.Configuration, op, "PROFILE_REMOTE_URL must be an absolute URL when PROFILE_SOURCE=remote")
		}
	default:
		return fault.New(fault.Configuration, op, "PROFILE_SOURCE must be %q or %q, got %q", SourceLocal, SourceRemote, c.Profiles.Source)
	}

	if c.Events.BufferSize <= 0 {
		return fault.New(fault.Configuration, op, "EVENTS_BUFFER must be positive")
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}
