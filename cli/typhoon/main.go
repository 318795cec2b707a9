package main

import (
	"fmt"
	"os"

	typhooncmder "github.com/papercomputeco/typhoon/cmd/typhoon"
)

func main() {
	cmd := typhooncmder.NewTyphoonCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
