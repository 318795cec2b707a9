// Package servecmder provides the serve command with subcommands for running services.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/api"
	apicmder "github.com/papercomputeco/typhoon/cmd/typhoon/serve/api"
	relaycmder "github.com/papercomputeco/typhoon/cmd/typhoon/serve/relay"
	"github.com/papercomputeco/typhoon/cmd/typhoon/serve/services"
	"github.com/papercomputeco/typhoon/pkg/config"
	"github.com/papercomputeco/typhoon/pkg/logger"
	"github.com/papercomputeco/typhoon/relay"
)

type ServeCommander struct {
	relayListen   string
	apiListen     string
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

const serveLongDesc string = `Run typhoon services.

Use subcommands to run individual services or all services together:
  typhoon serve          Run both relay and API server together
  typhoon serve relay    Run just the relay server
  typhoon serve api      Run just the API server`

const serveShortDesc string = "Run typhoon services"

var serveFlags = slices.Concat(
	[]string{config.FlagRelayListen, config.FlagAPIListen},
	services.RelayFlags,
	services.StorageFlags,
)

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.logFile, _ = cmd.Flags().GetString("log-file")
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagRelayListen, &cmder.relayListen)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.apiListen)
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

	cmd.AddCommand(relaycmder.NewRelayCmd())
	cmd.AddCommand(apicmder.NewAPICmd())

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
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

	// Shared between the relay and the API server.
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

	apiServer := api.NewServer(services.APIConfig(c.viper), driver, c.logger)
	defer apiServer.Shutdown()

	errChan := make(chan error, 2)

	go func() {
		if err := r.Run(); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}
