package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --backend
// on both "typhoon serve" and "typhoon serve relay").
type Flag struct {
	// Name is the long flag name (e.g. "backend").
	Name string

	// Shorthand is the one-letter short flag (e.g. "b"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "relay.backend").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling the Add*Flag helpers and
// BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagRelayListen   = "relay-listen"
	FlagAPIListen     = "api-listen"
	FlagBackend       = "backend"
	FlagMock          = "mock"
	FlagStreamTimeout = "stream-timeout"
	FlagSQLite        = "sqlite"
	FlagPostgres      = "postgres"
	FlagEventStream   = "eventstream"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
	FlagJWTSecret     = "jwt-secret"
	FlagRateLimit     = "rate-limit"
	FlagBurst         = "burst"
	FlagRelayTarget   = "relay-target"
	FlagBackendTarget = "backend-target"
	FlagEmail         = "email"
	FlagModel         = "model"

	// Standalone subcommand variants use "listen" as the flag name
	// but bind to different viper keys depending on the service.
	FlagRelayListenStandalone = "relay-listen-standalone"
	FlagAPIListenStandalone   = "api-listen-standalone"
)

// Flags is the registry shared by every typhoon command.
var Flags = FlagSet{
	FlagRelayListen:           {Name: "relay-listen", Shorthand: "r", ViperKey: "relay.listen", Description: "Address for the relay to listen on"},
	FlagAPIListen:             {Name: "api-listen", Shorthand: "a", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagRelayListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay to listen on"},
	FlagAPIListenStandalone:   {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagBackend:               {Name: "backend", Shorthand: "b", ViperKey: "relay.backend", Description: "Chat backend base URL (env: " + LegacyBackendEnv + ")"},
	FlagMock:                  {Name: "mock", ViperKey: "relay.mock", Description: "Serve canned mock streams instead of contacting the backend"},
	FlagStreamTimeout:         {Name: "stream-timeout", ViperKey: "relay.stream_timeout", Description: "Maximum duration of a single relayed stream"},
	FlagSQLite:                {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database for relayed turns (default: in-memory)"},
	FlagPostgres:              {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL DSN for relayed turns (wins over --sqlite)"},
	FlagEventStream:           {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Turn event publisher (nop, kafka)"},
	FlagKafkaBrokers:          {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagKafkaTopic:            {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for turn events"},
	FlagJWTSecret:             {Name: "jwt-secret", ViperKey: "auth.jwt_secret", Description: "HMAC secret for bearer tokens (empty disables auth)"},
	FlagRateLimit:             {Name: "rate-limit", ViperKey: "ratelimit.requests_per_second", Description: "Chat requests per second per client (0 disables)"},
	FlagBurst:                 {Name: "burst", ViperKey: "ratelimit.burst", Description: "Chat request burst per client"},
	FlagRelayTarget:           {Name: "relay-target", ViperKey: "client.relay_target", Description: "Relay URL the chat client streams from"},
	FlagBackendTarget:         {Name: "backend-target", ViperKey: "client.backend_target", Description: "Backend URL for sessions, preferences and models"},
	FlagEmail:                 {Name: "email", Shorthand: "e", ViperKey: "client.email", Description: "Email of the chatting user"},
	FlagModel:                 {Name: "model", Shorthand: "m", ViperKey: "client.model", Description: "Model shortname to chat with"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloat64Flag registers a float64 flag on cmd from the given FlagSet.
func AddFloat64Flag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
// The config stores durations as strings such as "5m".
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, key string, target *time.Duration) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultViper().GetDuration(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().DurationVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultViper returns a viper holding only the NewDefaultConfig values.
func defaultViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
