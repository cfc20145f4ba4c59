package mindchat

import "embed"

// MigrationsFS holds the SQL migrations applied by the migrate command and on serve startup.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
