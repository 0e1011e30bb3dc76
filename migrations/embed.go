// Package migrations holds the versioned SQL schema, embedded so the server
// binary can migrate without a checkout of this directory.
package migrations

import "embed"

// FS contains every *.up.sql / *.down.sql file
//
//go:embed *.sql
var FS embed.FS
