// Package migrations embeds the postgres schema of the identifier map
package migrations

import "embed"

// FS holds the numbered up/down SQL files
//
//go:embed *.sql
var FS embed.FS
