// Package db embeds the SQL migrations applied at startup.
package db

import "embed"

// Migrations holds the PostgreSQL migrations under pg/.
//
//go:embed pg/*.sql
var Migrations embed.FS

// MigrationsPath is the directory inside Migrations that holds the files.
const MigrationsPath = "pg"
