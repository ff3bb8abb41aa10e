package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/allisson/whizbang/migrations"
)

// MigrateDirection selects whether Migrate applies or reverts migrations.
type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down"
)

// Migrate applies (or reverts) the embedded migrations for dialect, rendered with the
// table prefix. The migration history lives in "<prefix>schema_migrations" so several
// prefixes can share one database.
//
// The migrate instance is not closed: closing it would close db, which the caller owns.
func Migrate(db *sql.DB, dialect string, tables Tables, direction MigrateDirection) error {
	src, err := iofs.New(migrations.FS(tables.Prefix), dialect)
	if err != nil {
		return fmt.Errorf("failed to load %s migrations: %w", dialect, err)
	}

	historyTable := tables.Prefix + "schema_migrations"

	var m *migrate.Migrate
	switch dialect {
	case DialectPostgreSQL:
		driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{MigrationsTable: historyTable})
		if err != nil {
			return fmt.Errorf("failed to create postgres migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "postgres", driver)
		if err != nil {
			return fmt.Errorf("failed to create migrate instance: %w", err)
		}
	case DialectMySQL:
		driver, err := migratemysql.WithInstance(db, &migratemysql.Config{MigrationsTable: historyTable})
		if err != nil {
			return fmt.Errorf("failed to create mysql migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", driver)
		if err != nil {
			return fmt.Errorf("failed to create migrate instance: %w", err)
		}
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	if direction == MigrateDown {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}
	return nil
}
