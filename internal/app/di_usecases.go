package app

import (
	"fmt"

	"github.com/allisson/whizbang/internal/config"
	coordinatorHTTP "github.com/allisson/whizbang/internal/coordinator/http"
	coordinatorUseCase "github.com/allisson/whizbang/internal/coordinator/usecase"
	dispatchUseCase "github.com/allisson/whizbang/internal/dispatch/usecase"
	eventstoreUseCase "github.com/allisson/whizbang/internal/eventstore/usecase"
	inboxUseCase "github.com/allisson/whizbang/internal/inbox/usecase"
	"github.com/allisson/whizbang/internal/messaging"
	"github.com/allisson/whizbang/internal/messaging/memory"
	"github.com/allisson/whizbang/internal/messaging/nats"
	outboxUseCase "github.com/allisson/whizbang/internal/outbox/usecase"
	perspectiveUseCase "github.com/allisson/whizbang/internal/perspective/usecase"
)

// HandlerRegistry returns the registry mapping message types to inbox handlers.
func (c *Container) HandlerRegistry() *messaging.HandlerRegistry {
	c.initRegistries()
	return c.handlerRegistry
}

// TypeRegistry returns the registry decoding event payloads by type name.
func (c *Container) TypeRegistry() *messaging.TypeRegistry {
	c.initRegistries()
	return c.typeRegistry
}

// PerspectiveRegistry returns the registry of perspectives and the stream types they follow.
func (c *Container) PerspectiveRegistry() *perspectiveUseCase.Registry {
	c.initRegistries()
	return c.perspectiveRegistry
}

func (c *Container) initRegistries() {
	c.registriesInit.Do(func() {
		c.handlerRegistry = messaging.NewHandlerRegistry()
		c.typeRegistry = messaging.NewTypeRegistry()
		c.perspectiveRegistry = perspectiveUseCase.NewRegistry()
	})
}

// Transport returns the configured message transport.
func (c *Container) Transport() (messaging.Transport, error) {
	var err error
	c.transportInit.Do(func() {
		c.transport, err = c.initTransport()
		if err != nil {
			c.initErrors["transport"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["transport"]; exists {
		return nil, storedErr
	}
	return c.transport, nil
}

// EventStore returns the event store use case.
func (c *Container) EventStore() (eventstoreUseCase.EventStore, error) {
	var err error
	c.eventStoreInit.Do(func() {
		c.eventStore, err = c.initEventStore()
		if err != nil {
			c.initErrors["eventStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventStore"]; exists {
		return nil, storedErr
	}
	return c.eventStore, nil
}

// Outbox returns the outbox use case.
func (c *Container) Outbox() (outboxUseCase.Outbox, error) {
	var err error
	c.outboxInit.Do(func() {
		c.outbox, err = c.initOutbox()
		if err != nil {
			c.initErrors["outbox"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outbox"]; exists {
		return nil, storedErr
	}
	return c.outbox, nil
}

// Publisher returns the throttled outbox publisher.
func (c *Container) Publisher() (*outboxUseCase.Publisher, error) {
	var err error
	c.publisherInit.Do(func() {
		c.publisher, err = c.initPublisher()
		if err != nil {
			c.initErrors["publisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["publisher"]; exists {
		return nil, storedErr
	}
	return c.publisher, nil
}

// PollingPublisher returns the standalone outbox publisher used when the coordinator
// is disabled.
func (c *Container) PollingPublisher() (*outboxUseCase.PollingPublisher, error) {
	var err error
	c.pollingPublisherInit.Do(func() {
		c.pollingPublish, err = c.initPollingPublisher()
		if err != nil {
			c.initErrors["pollingPublisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["pollingPublisher"]; exists {
		return nil, storedErr
	}
	return c.pollingPublish, nil
}

// Inbox returns the inbox use case.
func (c *Container) Inbox() (inboxUseCase.Inbox, error) {
	var err error
	c.inboxInit.Do(func() {
		c.inbox, err = c.initInbox()
		if err != nil {
			c.initErrors["inbox"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["inbox"]; exists {
		return nil, storedErr
	}
	return c.inbox, nil
}

// PerspectiveRunner returns the perspective runner.
func (c *Container) PerspectiveRunner() (perspectiveUseCase.Runner, error) {
	var err error
	c.runnerInit.Do(func() {
		c.runner, err = c.initPerspectiveRunner()
		if err != nil {
			c.initErrors["perspectiveRunner"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["perspectiveRunner"]; exists {
		return nil, storedErr
	}
	return c.runner, nil
}

// PerspectiveTracker returns the checkpoint tracker.
func (c *Container) PerspectiveTracker() (perspectiveUseCase.Tracker, error) {
	var err error
	c.trackerInit.Do(func() {
		c.tracker, err = c.initPerspectiveTracker()
		if err != nil {
			c.initErrors["perspectiveTracker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["perspectiveTracker"]; exists {
		return nil, storedErr
	}
	return c.tracker, nil
}

// Coordinator returns the work coordinator.
func (c *Container) Coordinator() (coordinatorUseCase.Coordinator, error) {
	var err error
	c.coordinatorInit.Do(func() {
		c.coordinator, err = c.initCoordinator()
		if err != nil {
			c.initErrors["coordinator"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["coordinator"]; exists {
		return nil, storedErr
	}
	return c.coordinator, nil
}

// Worker returns the heartbeat worker of this instance.
func (c *Container) Worker() (*coordinatorUseCase.Worker, error) {
	var err error
	c.workerInit.Do(func() {
		c.worker, err = c.initWorker()
		if err != nil {
			c.initErrors["worker"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["worker"]; exists {
		return nil, storedErr
	}
	return c.worker, nil
}

// Dispatcher returns the unit of work dispatcher.
func (c *Container) Dispatcher() (dispatchUseCase.Dispatcher, error) {
	var err error
	c.dispatcherInit.Do(func() {
		c.dispatcher, err = c.initDispatcher()
		if err != nil {
			c.initErrors["dispatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dispatcher"]; exists {
		return nil, storedErr
	}
	return c.dispatcher, nil
}

// WorkHandler returns the HTTP handler for failed work remediation.
func (c *Container) WorkHandler() (*coordinatorHTTP.WorkHandler, error) {
	var err error
	c.workHandlerInit.Do(func() {
		c.workHandler, err = c.initWorkHandler()
		if err != nil {
			c.initErrors["workHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["workHandler"]; exists {
		return nil, storedErr
	}
	return c.workHandler, nil
}

func (c *Container) initTransport() (messaging.Transport, error) {
	switch c.config.Transport {
	case config.TransportMemory:
		return memory.NewTransport(), nil
	case config.TransportNATS:
		natsConfig := nats.DefaultConfig()
		natsConfig.URL = c.config.NATSURL
		natsConfig.Name = c.config.ServiceName
		natsConfig.QueueGroup = c.config.NATSQueueGroup

		transport, err := nats.Connect(natsConfig, c.Logger())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", c.config.Transport)
	}
}

func (c *Container) initEventStore() (eventstoreUseCase.EventStore, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for event store: %w", err)
	}
	repo, err := c.EventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get event repository for event store: %w", err)
	}
	sequences, err := c.SequenceProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence provider for event store: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for event store: %w", err)
	}

	store := eventstoreUseCase.NewEventStore(txManager, repo, sequences, c.TypeRegistry())
	return eventstoreUseCase.NewEventStoreWithMetrics(store, businessMetrics), nil
}

func (c *Container) initOutbox() (outboxUseCase.Outbox, error) {
	repo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for outbox: %w", err)
	}

	outbox := outboxUseCase.NewOutbox(repo, c.config.PartitionCount)
	return outboxUseCase.NewOutboxWithMetrics(outbox, businessMetrics), nil
}

func (c *Container) initPublisher() (*outboxUseCase.Publisher, error) {
	transport, err := c.Transport()
	if err != nil {
		return nil, fmt.Errorf("failed to get transport for publisher: %w", err)
	}

	return outboxUseCase.NewPublisher(
		transport,
		outboxUseCase.PublisherConfig{
			RateLimit:  c.config.PublishRateLimitPerSec,
			Burst:      c.config.PublishRateLimitBurst,
			MaxRetries: c.config.PublishMaxRetries,
		},
		c.Instance().Info(),
		c.Logger(),
	), nil
}

func (c *Container) initPollingPublisher() (*outboxUseCase.PollingPublisher, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for polling publisher: %w", err)
	}
	repo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for polling publisher: %w", err)
	}
	publisher, err := c.Publisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get publisher for polling publisher: %w", err)
	}

	return outboxUseCase.NewPollingPublisher(
		outboxUseCase.Config{
			Interval:    c.config.OutboxPollInterval,
			BatchSize:   c.config.WorkBatchSize,
			MaxAttempts: c.config.MaxAttempts,
		},
		txManager,
		repo,
		publisher,
		c.Logger(),
	), nil
}

func (c *Container) initInbox() (inboxUseCase.Inbox, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for inbox: %w", err)
	}
	repo, err := c.InboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox repository for inbox: %w", err)
	}
	transport, err := c.Transport()
	if err != nil {
		return nil, fmt.Errorf("failed to get transport for inbox: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for inbox: %w", err)
	}

	inbox := inboxUseCase.NewInbox(
		inboxUseCase.Config{
			PartitionCount: c.config.PartitionCount,
			MaxAttempts:    c.config.MaxAttempts,
		},
		txManager,
		repo,
		c.HandlerRegistry(),
		transport,
		c.Instance().Info(),
		c.Logger(),
	)
	return inboxUseCase.NewInboxWithMetrics(inbox, businessMetrics), nil
}

func (c *Container) initPerspectiveRunner() (perspectiveUseCase.Runner, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for perspective runner: %w", err)
	}
	repo, err := c.CheckpointRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint repository for perspective runner: %w", err)
	}
	events, err := c.EventStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get event store for perspective runner: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for perspective runner: %w", err)
	}

	runner := perspectiveUseCase.NewRunner(txManager, repo, events, c.PerspectiveRegistry(), c.Logger())
	return perspectiveUseCase.NewRunnerWithMetrics(runner, businessMetrics), nil
}

func (c *Container) initPerspectiveTracker() (perspectiveUseCase.Tracker, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for perspective tracker: %w", err)
	}
	repo, err := c.CheckpointRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint repository for perspective tracker: %w", err)
	}
	return perspectiveUseCase.NewTracker(txManager, repo, c.Logger()), nil
}

func (c *Container) initCoordinator() (coordinatorUseCase.Coordinator, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for coordinator: %w", err)
	}
	instances, err := c.InstanceRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get instance repository for coordinator: %w", err)
	}
	partitions, err := c.PartitionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get partition repository for coordinator: %w", err)
	}
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for coordinator: %w", err)
	}
	inboxRepo, err := c.InboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox repository for coordinator: %w", err)
	}
	checkpoints, err := c.CheckpointRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint repository for coordinator: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for coordinator: %w", err)
	}

	coordinator := coordinatorUseCase.NewCoordinator(
		coordinatorUseCase.Config{
			LeaseTimeout:   c.config.LeaseTimeout,
			BatchSize:      c.config.WorkBatchSize,
			MaxAttempts:    c.config.MaxAttempts,
			PartitionCount: c.config.PartitionCount,
		},
		txManager,
		instances,
		partitions,
		outboxRepo,
		inboxRepo,
		checkpoints,
		c.Logger(),
	)
	return coordinatorUseCase.NewCoordinatorWithMetrics(coordinator, businessMetrics), nil
}

func (c *Container) initWorker() (*coordinatorUseCase.Worker, error) {
	coordinator, err := c.Coordinator()
	if err != nil {
		return nil, fmt.Errorf("failed to get coordinator for worker: %w", err)
	}
	publisher, err := c.Publisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get publisher for worker: %w", err)
	}
	inbox, err := c.Inbox()
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox for worker: %w", err)
	}
	runner, err := c.PerspectiveRunner()
	if err != nil {
		return nil, fmt.Errorf("failed to get perspective runner for worker: %w", err)
	}

	return coordinatorUseCase.NewWorker(
		coordinatorUseCase.WorkerConfig{HeartbeatInterval: c.config.HeartbeatInterval},
		coordinator,
		c.Instance(),
		publisher,
		inbox,
		runner,
		c.Logger(),
	), nil
}

func (c *Container) initDispatcher() (dispatchUseCase.Dispatcher, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for dispatcher: %w", err)
	}
	events, err := c.EventStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get event store for dispatcher: %w", err)
	}
	outbox, err := c.Outbox()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox for dispatcher: %w", err)
	}
	coordinator, err := c.Coordinator()
	if err != nil {
		return nil, fmt.Errorf("failed to get coordinator for dispatcher: %w", err)
	}

	return dispatchUseCase.NewDispatcher(
		txManager,
		events,
		outbox,
		coordinator,
		c.PerspectiveRegistry(),
		c.Instance().Info(),
		c.Logger(),
	), nil
}

func (c *Container) initWorkHandler() (*coordinatorHTTP.WorkHandler, error) {
	outbox, err := c.Outbox()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox for work handler: %w", err)
	}
	inbox, err := c.Inbox()
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox for work handler: %w", err)
	}
	tracker, err := c.PerspectiveTracker()
	if err != nil {
		return nil, fmt.Errorf("failed to get perspective tracker for work handler: %w", err)
	}
	coordinator, err := c.Coordinator()
	if err != nil {
		return nil, fmt.Errorf("failed to get coordinator for work handler: %w", err)
	}

	return coordinatorHTTP.NewWorkHandler(outbox, inbox, tracker, coordinator, c.Logger()), nil
}
