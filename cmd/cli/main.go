package main

import (
	"os"

	"github.com/mcpsandbox/mcpsandbox/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
