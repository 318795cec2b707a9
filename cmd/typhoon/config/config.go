// Package configcmder provides the config command for managing persistent
// typhoon configuration stored in the .typhoon/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent typhoon configuration.

Configuration is stored as config.toml in the .typhoon/ directory and provides
default values for command flags. CLI flags and TYPHOON_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.backend, relay.mock, relay.stream_timeout,
  api.listen, storage.sqlite_path, storage.postgres_dsn,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  auth.jwt_secret, ratelimit.requests_per_second, ratelimit.burst,
  client.relay_target, client.backend_target, client.email,
  client.model, client.model_fullname

Use subcommands to get, set, or list configuration values:
  typhoon config set <key> <value>    Set a configuration value
  typhoon config get <key>            Get a configuration value
  typhoon config list                 List all configuration values

Examples:
  typhoon config set relay.backend http://llm.internal:8000
  typhoon config set client.email ada@example.com
  typhoon config get relay.backend
  typhoon config list`

const configShortDesc string = "Manage persistent typhoon configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// configDirFlag reads the root's persistent --config-dir flag when present.
func configDirFlag(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}
