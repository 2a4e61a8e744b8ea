// Package main provides the ledgersync command line entry point.
package main

import (
	"os"

	"github.com/ledger-sync/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:]))
}
