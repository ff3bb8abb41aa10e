// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/allisson/whizbang/internal/config"
	coordinatorDomain "github.com/allisson/whizbang/internal/coordinator/domain"
	coordinatorHTTP "github.com/allisson/whizbang/internal/coordinator/http"
	coordinatorUseCase "github.com/allisson/whizbang/internal/coordinator/usecase"
	"github.com/allisson/whizbang/internal/database"
	dispatchUseCase "github.com/allisson/whizbang/internal/dispatch/usecase"
	eventstoreUseCase "github.com/allisson/whizbang/internal/eventstore/usecase"
	"github.com/allisson/whizbang/internal/http"
	inboxUseCase "github.com/allisson/whizbang/internal/inbox/usecase"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/metrics"
	outboxUseCase "github.com/allisson/whizbang/internal/outbox/usecase"
	perspectiveUseCase "github.com/allisson/whizbang/internal/perspective/usecase"
	"github.com/allisson/whizbang/internal/sequence"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
//
// Handlers, event types and perspectives are registered on the registries returned by
// HandlerRegistry, TypeRegistry and PerspectiveRegistry before the worker starts.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	tables          database.Tables
	instance        *coordinatorDomain.ServiceInstance
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	transport       messaging.Transport

	// Managers
	txManager database.TxManager

	// Registries
	handlerRegistry     *messaging.HandlerRegistry
	typeRegistry        *messaging.TypeRegistry
	perspectiveRegistry *perspectiveUseCase.Registry

	// Repositories
	sequenceProvider   sequence.Provider
	eventRepository    eventstoreUseCase.EventRepository
	outboxRepository   outboxUseCase.OutboxRepository
	inboxRepository    inboxUseCase.InboxRepository
	checkpointRepo     perspectiveUseCase.CheckpointRepository
	instanceRepository coordinatorUseCase.InstanceRepository
	partitionRepo      coordinatorUseCase.PartitionRepository

	// Use Cases
	eventStore     eventstoreUseCase.EventStore
	outbox         outboxUseCase.Outbox
	publisher      *outboxUseCase.Publisher
	pollingPublish *outboxUseCase.PollingPublisher
	inbox          inboxUseCase.Inbox
	runner         perspectiveUseCase.Runner
	tracker        perspectiveUseCase.Tracker
	coordinator    coordinatorUseCase.Coordinator
	worker         *coordinatorUseCase.Worker
	dispatcher     dispatchUseCase.Dispatcher
	workHandler    *coordinatorHTTP.WorkHandler
	httpServer     *http.Server
	metricsServer  *http.MetricsServer

	// Initialization flags and mutex for thread-safety
	mu                     sync.Mutex
	loggerInit             sync.Once
	dbInit                 sync.Once
	instanceInit           sync.Once
	txManagerInit          sync.Once
	metricsProviderInit    sync.Once
	businessMetricsInit    sync.Once
	transportInit          sync.Once
	registriesInit         sync.Once
	sequenceProviderInit   sync.Once
	eventRepositoryInit    sync.Once
	outboxRepositoryInit   sync.Once
	inboxRepositoryInit    sync.Once
	checkpointRepoInit     sync.Once
	instanceRepositoryInit sync.Once
	partitionRepoInit      sync.Once
	eventStoreInit         sync.Once
	outboxInit             sync.Once
	publisherInit          sync.Once
	pollingPublisherInit   sync.Once
	inboxInit              sync.Once
	runnerInit             sync.Once
	trackerInit            sync.Once
	coordinatorInit        sync.Once
	workerInit             sync.Once
	dispatcherInit         sync.Once
	workHandlerInit        sync.Once
	httpServerInit         sync.Once
	metricsServerInit      sync.Once
	initErrors             map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		tables:     database.NewTables(cfg.TablePrefix),
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Tables returns the coordination table names for the configured prefix.
func (c *Container) Tables() database.Tables {
	return c.tables
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// Instance returns the identity of this process. Every coordinator call is made
// on behalf of it.
func (c *Container) Instance() *coordinatorDomain.ServiceInstance {
	c.instanceInit.Do(func() {
		c.instance = coordinatorDomain.NewServiceInstance(
			messaging.NewServiceInstanceInfo(c.config.ServiceName),
			time.Now().UTC(),
		)
	})
	return c.instance
}

// DB returns the database connection.
// It creates and configures the database connection on first access.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
// It requires a database connection to be initialized first.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when metrics
// are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the ops HTTP server.
func (c *Container) HTTPServer() (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("transport close: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler).With(slog.String("service", c.config.ServiceName))
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	if _, err := database.DialectFor(c.config.DBDriver); err != nil {
		return nil, err
	}
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(metrics.ProviderConfig{
		Namespace:   c.config.MetricsNamespace,
		ServiceName: c.config.ServiceName,
		InstanceID:  c.Instance().InstanceID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), provider.Namespace())
}

// initHTTPServer creates the ops HTTP server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}
	workHandler, err := c.WorkHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get work handler for http server: %w", err)
	}
	transport, err := c.Transport()
	if err != nil {
		return nil, fmt.Errorf("failed to get transport for http server: %w", err)
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(workHandler, transport, provider)
	return server, nil
}

func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, provider, c.Logger()), nil
}
