// Package typhooncmder
package typhooncmder

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/typhoon/cmd/typhoon/chat"
	configcmder "github.com/papercomputeco/typhoon/cmd/typhoon/config"
	historycmder "github.com/papercomputeco/typhoon/cmd/typhoon/history"
	initcmder "github.com/papercomputeco/typhoon/cmd/typhoon/init"
	servecmder "github.com/papercomputeco/typhoon/cmd/typhoon/serve"
	tokencmder "github.com/papercomputeco/typhoon/cmd/typhoon/token"
	versioncmder "github.com/papercomputeco/typhoon/cmd/version"
)

const typhoonLongDesc string = `Typhoon relays streamed chat completions and assembles them into
persisted transcripts.

Run services using:
  typhoon serve relay    Run the streaming relay
  typhoon serve api      Run the turn inspection API
  typhoon serve          Run both servers together

Chat and browse history using:
  typhoon chat           Interactive chat through the relay
  typhoon history        List or print saved conversations

Settings are read from flags, TYPHOON_* environment variables (a .env file in
the working directory is loaded first), and .typhoon/config.toml, in that order.`

const typhoonShortDesc string = "Typhoon - chat streaming relay"

func NewTyphoonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "typhoon",
		Short:         typhoonShortDesc,
		Long:          typhoonLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .typhoon/ config directory")
	cmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(tokencmder.NewTokenCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// loadDotEnv loads ./.env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
