// Package migrations embeds the schema migrations so binaries can migrate
// without a checkout of this directory.
package migrations

import "embed"

// Postgres holds the ledger schema migrations under postgres/
//
//go:embed postgres/*.sql
var Postgres embed.FS
