package main

import (
	"fmt"
	"os"

	relaycmder "github.com/papercomputeco/typhoon/cmd/typhoon/serve/relay"
)

func main() {
	cmd := relaycmder.NewRelayCmd()

	cmd.Use = "typhoonrelay"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .typhoon/ config directory")
	cmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file")

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
