package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent typhoon configuration stored as config.toml
// in the .typhoon/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Relay       RelayConfig       `toml:"relay"`
	API         APIConfig         `toml:"api"`
	Storage     StorageConfig     `toml:"storage"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Auth        AuthConfig        `toml:"auth"`
	RateLimit   RateLimitConfig   `toml:"ratelimit"`
	Client      ClientConfig      `toml:"client"`
}

// RelayConfig holds stream relay settings.
type RelayConfig struct {
	Listen  string `toml:"listen,omitempty"`
	Backend string `toml:"backend,omitempty"`
	Mock    bool   `toml:"mock,omitempty"`

	// StreamTimeout is a Go duration string, e.g. "5m".
	StreamTimeout string `toml:"stream_timeout,omitempty"`
}

// APIConfig holds inspection API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// StorageConfig holds relayed-turn storage settings shared by the relay and
// the API. A PostgreSQL DSN wins over a SQLite path; with neither set turns
// are kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventStreamConfig holds turn event publishing settings.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// AuthConfig holds the bearer-token settings for the relay.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret,omitempty"`
}

// RateLimitConfig holds per-client chat rate limits. Zero requests per
// second disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second,omitempty"`
	Burst             int     `toml:"burst,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// relay and backend (typhoon chat, typhoon history).
// Targets are full URLs (scheme + host + port).
type ClientConfig struct {
	RelayTarget   string `toml:"relay_target,omitempty"`
	BackendTarget string `toml:"backend_target,omitempty"`
	Email         string `toml:"email,omitempty"`
	Model         string `toml:"model,omitempty"`
	ModelFullname string `toml:"model_fullname,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relay.listen": {
		get: func(c *Config) string { return c.Relay.Listen },
		set: func(c *Config, v string) error { c.Relay.Listen = v; return nil },
	},
	"relay.backend": {
		get: func(c *Config) string { return c.Relay.Backend },
		set: func(c *Config, v string) error { c.Relay.Backend = v; return nil },
	},
	"relay.mock": {
		get: func(c *Config) string { return strconv.FormatBool(c.Relay.Mock) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for relay.mock: %w", err)
			}
			c.Relay.Mock = b
			return nil
		},
	},
	"relay.stream_timeout": {
		get: func(c *Config) string { return c.Relay.StreamTimeout },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for relay.stream_timeout: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for relay.stream_timeout: %q must be positive", v)
			}
			c.Relay.StreamTimeout = v
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case EventStreamNop, EventStreamKafka:
			default:
				return fmt.Errorf("invalid value for eventstream.provider: %q (available: %s, %s)",
					v, EventStreamNop, EventStreamKafka)
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"auth.jwt_secret": {
		get: func(c *Config) string { return c.Auth.JWTSecret },
		set: func(c *Config, v string) error { c.Auth.JWTSecret = v; return nil },
	},
	"ratelimit.requests_per_second": {
		get: func(c *Config) string { return strconv.FormatFloat(c.RateLimit.RequestsPerSecond, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for ratelimit.requests_per_second: %w", err)
			}
			if f < 0 {
				return fmt.Errorf("invalid value for ratelimit.requests_per_second: %q must not be negative", v)
			}
			c.RateLimit.RequestsPerSecond = f
			return nil
		},
	},
	"ratelimit.burst": {
		get: func(c *Config) string { return strconv.Itoa(c.RateLimit.Burst) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 31)
			if err != nil {
				return fmt.Errorf("invalid value for ratelimit.burst: %w", err)
			}
			c.RateLimit.Burst = int(n)
			return nil
		},
	},
	"client.relay_target": {
		get: func(c *Config) string { return c.Client.RelayTarget },
		set: func(c *Config, v string) error { c.Client.RelayTarget = v; return nil },
	},
	"client.backend_target": {
		get: func(c *Config) string { return c.Client.BackendTarget },
		set: func(c *Config, v string) error { c.Client.BackendTarget = v; return nil },
	},
	"client.email": {
		get: func(c *Config) string { return c.Client.Email },
		set: func(c *Config, v string) error { c.Client.Email = v; return nil },
	},
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"client.model_fullname": {
		get: func(c *Config) string { return c.Client.ModelFullname },
		set: func(c *Config, v string) error { c.Client.ModelFullname = v; return nil },
	},
}
