package migrations

import "embed"

// Schema migrations, one set per supported driver. Filename order is
// application order.

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
