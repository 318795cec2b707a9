package main

import (
	"os"

	apicmder "github.com/papercomputeco/typhoon/cmd/typhoon/serve/api"
)

func main() {
	cmd := apicmder.NewAPICmd()
	cmd.Use = "typhoonapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .typhoon/ config directory")
	cmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
