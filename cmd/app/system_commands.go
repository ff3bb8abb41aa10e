package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/whizbang/cmd/app/commands"
	"github.com/allisson/whizbang/internal/app"
	"github.com/allisson/whizbang/internal/config"
	"github.com/allisson/whizbang/internal/database"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "worker",
			Usage: "Start the coordination worker and the ops HTTP server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations for the configured table prefix",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "down",
					Value: false,
					Usage: "Revert every migration instead of applying them",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				db, err := container.DB()
				if err != nil {
					return err
				}

				direction := database.MigrateUp
				if cmd.Bool("down") {
					direction = database.MigrateDown
				}

				return commands.RunMigrations(container.Logger(), db, cfg.DBDriver, container.Tables(), direction)
			},
		},
	}
}
