package main

import (
	"os"

	"github.com/relayops/relaybot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
