// Package apicmder provides the inspection API server command.
package apicmder

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/api"
	"github.com/papercomputeco/typhoon/cmd/typhoon/serve/services"
	"github.com/papercomputeco/typhoon/pkg/config"
	"github.com/papercomputeco/typhoon/pkg/logger"
)

type apiCommander struct {
	listen      string
	sqlitePath  string
	postgresDSN string

	debug   bool
	logFile string
	viper   *viper.Viper
	logger  *zap.Logger
}

const apiLongDesc string = `Run the inspection API server.

Serves the turns the relay has recorded: GET /turns, GET /turns/:id and
GET /turns/stats. Point it at the same SQLite file or PostgreSQL database
as the relay; an in-memory store is only useful under "typhoon serve".`

const apiShortDesc string = "Run the typhoon API server"

var apiFlags = slices.Concat([]string{config.FlagAPIListenStandalone}, services.StorageFlags)

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, apiFlags)
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

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListenStandalone, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)

	return cmd
}

func (c *apiCommander) run(ctx context.Context) error {
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

	server := api.NewServer(services.APIConfig(c.viper), driver, c.logger)
	return server.Run()
}
