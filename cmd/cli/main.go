package main

import (
	"os"

	"github.com/branchd-dev/sessiongate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
