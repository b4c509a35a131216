package main

import (
	"os"

	"github.com/subgate-dev/subgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
