// Package migrations holds the reference-schema DDL applied by the migrate
// command and by the SQLite snapshot store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
