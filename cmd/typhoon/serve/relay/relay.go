// Package relaycmder provides the relay server command.
package relaycmder

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/cmd/typhoon/serve/services"
	"github.com/papercomputeco/typhoon/pkg/config"
	"github.com/papercomputeco/typhoon/pkg/logger"
	"github.com/papercomputeco/typhoon/relay"
)

type relayCommander struct {
	listen        string
	backend       string
	mock          bool
	streamTimeout time.Duration
	sqlitePath    string
	postgresDSN   string
	eventStream   string
	kafkaBrokers  string
	kafkaTopic    string
	jwtSecret     string
	rateLimit     float64
	burst         int

	debug   bool
	logFile string
	viper   *viper.Viper
	logger  *zap.Logger
}

const relayLongDesc string = `Run the relay server.

The relay sits between browsers and the chat backend. It re-emits the
backend's chat stream as Server-Sent Events the moment each event arrives,
forwards the persistence routes, and records every relayed turn.

The backend URL can also be given with the LLM_BACKEND_ENDPOINT environment
variable. With --mock the relay streams canned replies without a backend.`

const relayShortDesc string = "Run the typhoon relay server"

var relayFlags = slices.Concat([]string{config.FlagRelayListenStandalone}, services.RelayFlags, services.StorageFlags)

func NewRelayCmd() *cobra.Command {
	cmder := &relayCommander{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: relayShortDesc,
		Long:  relayLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, relayFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.logFile, _ = cmd.Flags().GetString("log-file")

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagRelayListenStandalone, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, &cmder.backend)
	config.AddBoolFlag(cmd, config.Flags, config.FlagMock, &cmder.mock)
	config.AddDurationFlag(cmd, config.Flags, config.FlagStreamTimeout, &cmder.streamTimeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, &cmder.eventStream)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddStringFlag(cmd, config.Flags, config.FlagJWTSecret, &cmder.jwtSecret)
	config.AddFloat64Flag(cmd, config.Flags, config.FlagRateLimit, &cmder.rateLimit)
	config.AddIntFlag(cmd, config.Flags, config.FlagBurst, &cmder.burst)

	return cmd
}

func (c *relayCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var closeLog func() error
	var err error
	c.logger, closeLog, err = logger.NewWithFile(c.debug, os.Stdout, c.logFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.logger.Sync()
		_ = closeLog()
	}()

	driver, err := services.NewStorageDriver(ctx, c.viper, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := services.NewPublisher(c.viper, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	r, err := relay.New(services.RelayConfig(c.viper), driver, publisher, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	defer r.Close()

	return r.Run()
}
