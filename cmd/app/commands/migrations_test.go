package commands

import (
	"log/slog"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/whizbang/internal/database"
)

func TestRunMigrations(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("invalid-driver", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		err = RunMigrations(logger, db, "invalid", database.NewTables("wb_"), database.MigrateUp)
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to resolve dialect")
	})
}
