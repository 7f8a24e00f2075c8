package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// Used by the migrate runner (cmd/migrate) to apply the schema for users, sessions,
// trusted devices, tenants, memberships, recovery codes and access events.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
