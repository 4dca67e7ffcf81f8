// Package trackerdb holds all the migrations for the tracker database
package trackerdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the tracker database
var Migrations = migrate.NewMigrations()
