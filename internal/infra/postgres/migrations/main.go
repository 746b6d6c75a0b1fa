// Package migrations holds the schema for the quiz definition store. Each
// migration lives in a <timestamp>_<name>.go file; bun derives the version
// from the file name.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
