// Package main provides the API server entry point. It is equivalent to
// "ledgersync serve".
package main

import (
	"os"

	"github.com/ledger-sync/internal/cli"
)

func main() {
	os.Exit(cli.Main(append([]string{"serve"}, os.Args[1:]...)))
}
