package commands

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/allisson/whizbang/internal/database"
)

// RunMigrations applies or reverts the embedded coordination schema for the configured
// driver, rendered with the table prefix. Returns nil if no migrations to apply.
func RunMigrations(
	logger *slog.Logger,
	db *sql.DB,
	driver string,
	tables database.Tables,
	direction database.MigrateDirection,
) error {
	dialect, err := database.DialectFor(driver)
	if err != nil {
		return fmt.Errorf("failed to resolve dialect: %w", err)
	}

	logger.Info("running database migrations",
		slog.String("driver", driver),
		slog.String("table_prefix", tables.Prefix),
		slog.String("direction", string(direction)),
	)

	if err := database.Migrate(db, dialect, tables, direction); err != nil {
		return err
	}

	logger.Info("migrations completed successfully")
	return nil
}
