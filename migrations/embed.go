// Package migrations embebe las migraciones SQL de cada driver.
package migrations

import "embed"

// FS contiene las migraciones. Formato: {version}_{name}.sql
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
