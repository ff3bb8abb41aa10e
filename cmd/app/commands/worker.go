package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/whizbang/internal/app"
	"github.com/allisson/whizbang/internal/config"
	"github.com/allisson/whizbang/internal/messaging"
)

// backgroundLoop is a loop that runs until its context is cancelled.
type backgroundLoop interface {
	Start(ctx context.Context) error
}

// RunWorker starts the coordination worker together with the ops HTTP server.
// With the coordinator enabled the lease-based worker drives outbox, inbox and
// perspective work; otherwise a polling publisher drains the outbox. The inbox is
// subscribed to SUBSCRIBE_DESTINATIONS. Blocks until SIGINT/SIGTERM or a fatal error,
// then stops the loops (flushing held outcomes) and shuts the servers down within
// DBConnMaxLifetime.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker",
		slog.String("version", version),
		slog.String("service_name", cfg.ServiceName),
		slog.Bool("coordinator_enabled", cfg.CoordinatorEnabled),
		slog.String("transport", cfg.Transport),
	)

	defer closeContainer(container, logger)

	loop, err := selectLoop(container, cfg.CoordinatorEnabled)
	if err != nil {
		return err
	}

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	subscriptions, err := subscribeInbox(ctx, container, cfg.SubscribeDestinations)
	if err != nil {
		return err
	}
	defer unsubscribeAll(subscriptions, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := loop.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("work loop error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
		defer shutdownCancel()

		var shutdownErrors []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}

func selectLoop(container *app.Container, coordinatorEnabled bool) (backgroundLoop, error) {
	if coordinatorEnabled {
		worker, err := container.Worker()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize worker: %w", err)
		}
		return worker, nil
	}

	publisher, err := container.PollingPublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize polling publisher: %w", err)
	}
	return publisher, nil
}

func subscribeInbox(
	ctx context.Context,
	container *app.Container,
	destinations []string,
) ([]messaging.Subscription, error) {
	if len(destinations) == 0 {
		return nil, nil
	}

	inbox, err := container.Inbox()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inbox: %w", err)
	}

	subscriptions, err := inbox.Subscribe(ctx, destinations...)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe inbox: %w", err)
	}
	return subscriptions, nil
}

func unsubscribeAll(subscriptions []messaging.Subscription, logger *slog.Logger) {
	for _, sub := range subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			logger.Error("failed to unsubscribe", slog.Any("error", err))
		}
	}
}
