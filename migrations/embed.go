// Package migrations embeds the SQL schema into the binary.
//
// Files follow YYYYMMDD_HHMMSS_description.up.sql / .down.sql and are applied
// by database.DB.Migrate in version order.
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
