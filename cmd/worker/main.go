// Package main provides the job worker entry point. It is equivalent to
// "ledgersync worker".
package main

import (
	"os"

	"github.com/ledger-sync/internal/cli"
)

func main() {
	os.Exit(cli.Main(append([]string{"worker"}, os.Args[1:]...)))
}
