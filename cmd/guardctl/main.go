package main

import (
	"os"

	"github.com/BradenHooton/marketguard/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
