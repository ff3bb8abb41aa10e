package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/whizbang/cmd/app/commands"
	"github.com/allisson/whizbang/internal/app"
	"github.com/allisson/whizbang/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func kindFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "kind",
		Aliases:  []string{"k"},
		Required: true,
		Usage:    "Work kind: 'outbox', 'inbox' or 'perspective'",
	}
}

// failedWorkStores resolves the three stores the failed-work commands operate on.
func failedWorkStores(
	container *app.Container,
) (commands.FailedOutbox, commands.FailedInbox, commands.FailedCheckpoints, error) {
	outbox, err := container.Outbox()
	if err != nil {
		return nil, nil, nil, err
	}
	inbox, err := container.Inbox()
	if err != nil {
		return nil, nil, nil, err
	}
	tracker, err := container.PerspectiveTracker()
	if err != nil {
		return nil, nil, nil, err
	}
	return outbox, inbox, tracker, nil
}

func getWorkCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "failed-work",
			Usage: "List outbox messages, inbox records or checkpoints that exhausted their attempts",
			Flags: []cli.Flag{
				kindFlag(),
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   50,
					Usage:   "Maximum number of rows to list",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				outbox, inbox, tracker, err := failedWorkStores(container)
				if err != nil {
					return err
				}

				return commands.RunFailedWork(
					ctx,
					outbox,
					inbox,
					tracker,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("kind"),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "retry-failed",
			Usage: "Move one failed work item back to pending",
			Flags: []cli.Flag{
				kindFlag(),
				&cli.StringFlag{
					Name:    "id",
					Aliases: []string{"i"},
					Usage:   "Message ID (UUID) for outbox and inbox work",
				},
				&cli.StringFlag{
					Name:  "handler",
					Usage: "Handler name for inbox work",
				},
				&cli.StringFlag{
					Name:    "stream",
					Aliases: []string{"s"},
					Usage:   "Stream ID for perspective work",
				},
				&cli.StringFlag{
					Name:    "perspective",
					Aliases: []string{"p"},
					Usage:   "Perspective name for perspective work",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				outbox, inbox, tracker, err := failedWorkStores(container)
				if err != nil {
					return err
				}

				return commands.RunRetryFailed(
					ctx,
					outbox,
					inbox,
					tracker,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("kind"),
					commands.RetryTarget{
						ID:          cmd.String("id"),
						Handler:     cmd.String("handler"),
						Stream:      cmd.String("stream"),
						Perspective: cmd.String("perspective"),
					},
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "reset-sequence",
			Usage: "Set the next value issued for a sequence key",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "key",
					Required: true,
					Usage:    "Sequence key, or stream id with --stream",
				},
				&cli.BoolFlag{
					Name:  "stream",
					Value: false,
					Usage: "Treat --key as a stream id",
				},
				&cli.IntFlag{
					Name:     "value",
					Required: true,
					Usage:    "Next value to issue",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				provider, err := container.SequenceProvider()
				if err != nil {
					return err
				}

				return commands.RunResetSequence(
					ctx,
					provider,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("key"),
					cmd.Bool("stream"),
					int64(cmd.Int("value")),
					cmd.String("format"),
				)
			},
		},
	}
}
