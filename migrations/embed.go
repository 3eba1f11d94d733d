// Package migrations ships the schema with the binary so a fresh deploy
// needs nothing on disk.
package migrations

import (
	"embed"
)

//go:embed *.sql
var FS embed.FS
