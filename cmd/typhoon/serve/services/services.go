// Package services builds the long-running typhoon services from resolved
// configuration so "typhoon serve" and its standalone subcommands share one
// wiring path.
package services

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/api"
	"github.com/papercomputeco/typhoon/pkg/config"
	"github.com/papercomputeco/typhoon/pkg/eventstream"
	"github.com/papercomputeco/typhoon/pkg/eventstream/kafka"
	"github.com/papercomputeco/typhoon/pkg/eventstream/nop"
	"github.com/papercomputeco/typhoon/pkg/storage"
	"github.com/papercomputeco/typhoon/pkg/storage/inmemory"
	"github.com/papercomputeco/typhoon/pkg/storage/postgres"
	"github.com/papercomputeco/typhoon/pkg/storage/sqlite"
	"github.com/papercomputeco/typhoon/relay"
)

// StorageFlags are the registry keys selecting the turn store.
var StorageFlags = []string{config.FlagSQLite, config.FlagPostgres}

// RelayFlags are the registry keys configuring the relay and its event stream.
var RelayFlags = []string{
	config.FlagBackend,
	config.FlagMock,
	config.FlagStreamTimeout,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagJWTSecret,
	config.FlagRateLimit,
	config.FlagBurst,
}

// RelayConfig reads the relay configuration from v.
func RelayConfig(v *viper.Viper) relay.Config {
	return relay.Config{
		ListenAddr:        v.GetString("relay.listen"),
		BackendURL:        v.GetString("relay.backend"),
		Mock:              v.GetBool("relay.mock"),
		StreamTimeout:     v.GetDuration("relay.stream_timeout"),
		JWTSecret:         v.GetString("auth.jwt_secret"),
		RequestsPerSecond: v.GetFloat64("ratelimit.requests_per_second"),
		Burst:             v.GetInt("ratelimit.burst"),
	}
}

// APIConfig reads the inspection API configuration from v.
func APIConfig(v *viper.Viper) api.Config {
	return api.Config{
		ListenAddr: v.GetString("api.listen"),
	}
}

// NewStorageDriver opens the turn store: PostgreSQL when a DSN is set, then
// SQLite when a path is set, otherwise memory.
func NewStorageDriver(ctx context.Context, v *viper.Viper, logger *zap.Logger) (storage.Driver, error) {
	if dsn := v.GetString("storage.postgres_dsn"); dsn != "" {
		driver, err := postgres.NewDriver(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		logger.Info("using PostgreSQL storage")
		return driver, nil
	}

	if path := v.GetString("storage.sqlite_path"); path != "" {
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Info("using SQLite storage", zap.String("path", path))
		return driver, nil
	}

	logger.Info("using in-memory storage")
	return inmemory.NewDriver(), nil
}

// NewPublisher creates the turn event publisher named by eventstream.provider.
func NewPublisher(v *viper.Viper, logger *zap.Logger) (eventstream.Publisher, error) {
	switch provider := v.GetString("eventstream.provider"); provider {
	case "", config.EventStreamNop:
		return nop.NewPublisher(), nil

	case config.EventStreamKafka:
		brokers := config.SplitList(v.GetString("eventstream.brokers"))
		topic := v.GetString("eventstream.topic")
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: brokers,
			Topic:   topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		logger.Info("publishing turn events to kafka",
			zap.Strings("brokers", brokers),
			zap.String("topic", topic),
		)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event stream provider: %q", provider)
	}
}
