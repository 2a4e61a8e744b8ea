// Package main provides a CLI tool for running database migrations. It is
// equivalent to "ledgersync migrate".
package main

import (
	"os"

	"github.com/ledger-sync/internal/cli"
)

func main() {
	os.Exit(cli.Main(append([]string{"migrate"}, os.Args[1:]...)))
}
