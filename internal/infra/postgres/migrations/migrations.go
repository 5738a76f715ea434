// Package migrations holds the Postgres schema of quizzes and player profiles.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
