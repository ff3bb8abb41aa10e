package app

import (
	"fmt"

	coordinatorMySQL "github.com/allisson/whizbang/internal/coordinator/repository/mysql"
	coordinatorPostgreSQL "github.com/allisson/whizbang/internal/coordinator/repository/postgresql"
	coordinatorUseCase "github.com/allisson/whizbang/internal/coordinator/usecase"
	"github.com/allisson/whizbang/internal/database"
	eventstoreMySQL "github.com/allisson/whizbang/internal/eventstore/repository/mysql"
	eventstorePostgreSQL "github.com/allisson/whizbang/internal/eventstore/repository/postgresql"
	eventstoreUseCase "github.com/allisson/whizbang/internal/eventstore/usecase"
	inboxMySQL "github.com/allisson/whizbang/internal/inbox/repository/mysql"
	inboxPostgreSQL "github.com/allisson/whizbang/internal/inbox/repository/postgresql"
	inboxUseCase "github.com/allisson/whizbang/internal/inbox/usecase"
	outboxMySQL "github.com/allisson/whizbang/internal/outbox/repository/mysql"
	outboxPostgreSQL "github.com/allisson/whizbang/internal/outbox/repository/postgresql"
	outboxUseCase "github.com/allisson/whizbang/internal/outbox/usecase"
	perspectiveMySQL "github.com/allisson/whizbang/internal/perspective/repository/mysql"
	perspectivePostgreSQL "github.com/allisson/whizbang/internal/perspective/repository/postgresql"
	perspectiveUseCase "github.com/allisson/whizbang/internal/perspective/usecase"
	"github.com/allisson/whizbang/internal/sequence"
	sequenceMySQL "github.com/allisson/whizbang/internal/sequence/repository/mysql"
	sequencePostgreSQL "github.com/allisson/whizbang/internal/sequence/repository/postgresql"
)

// SequenceProvider returns the SQL sequence provider based on database driver.
func (c *Container) SequenceProvider() (sequence.Provider, error) {
	var err error
	c.sequenceProviderInit.Do(func() {
		c.sequenceProvider, err = c.initSequenceProvider()
		if err != nil {
			c.initErrors["sequenceProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["sequenceProvider"]; exists {
		return nil, storedErr
	}
	return c.sequenceProvider, nil
}

// EventRepository returns the event store repository based on database driver.
func (c *Container) EventRepository() (eventstoreUseCase.EventRepository, error) {
	var err error
	c.eventRepositoryInit.Do(func() {
		c.eventRepository, err = c.initEventRepository()
		if err != nil {
			c.initErrors["eventRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["eventRepository"]; exists {
		return nil, storedErr
	}
	return c.eventRepository, nil
}

// OutboxRepository returns the outbox repository based on database driver.
func (c *Container) OutboxRepository() (outboxUseCase.OutboxRepository, error) {
	var err error
	c.outboxRepositoryInit.Do(func() {
		c.outboxRepository, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepository"]; exists {
		return nil, storedErr
	}
	return c.outboxRepository, nil
}

// InboxRepository returns the inbox repository based on database driver.
func (c *Container) InboxRepository() (inboxUseCase.InboxRepository, error) {
	var err error
	c.inboxRepositoryInit.Do(func() {
		c.inboxRepository, err = c.initInboxRepository()
		if err != nil {
			c.initErrors["inboxRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["inboxRepository"]; exists {
		return nil, storedErr
	}
	return c.inboxRepository, nil
}

// CheckpointRepository returns the perspective checkpoint repository based on database driver.
func (c *Container) CheckpointRepository() (perspectiveUseCase.CheckpointRepository, error) {
	var err error
	c.checkpointRepoInit.Do(func() {
		c.checkpointRepo, err = c.initCheckpointRepository()
		if err != nil {
			c.initErrors["checkpointRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["checkpointRepository"]; exists {
		return nil, storedErr
	}
	return c.checkpointRepo, nil
}

// InstanceRepository returns the service instance repository based on database driver.
func (c *Container) InstanceRepository() (coordinatorUseCase.InstanceRepository, error) {
	var err error
	c.instanceRepositoryInit.Do(func() {
		c.instanceRepository, err = c.initInstanceRepository()
		if err != nil {
			c.initErrors["instanceRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["instanceRepository"]; exists {
		return nil, storedErr
	}
	return c.instanceRepository, nil
}

// PartitionRepository returns the partition assignment repository based on database driver.
func (c *Container) PartitionRepository() (coordinatorUseCase.PartitionRepository, error) {
	var err error
	c.partitionRepoInit.Do(func() {
		c.partitionRepo, err = c.initPartitionRepository()
		if err != nil {
			c.initErrors["partitionRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["partitionRepository"]; exists {
		return nil, storedErr
	}
	return c.partitionRepo, nil
}

// dialect resolves the SQL dialect of the configured driver.
func (c *Container) dialect() (string, error) {
	return database.DialectFor(c.config.DBDriver)
}

func (c *Container) initSequenceProvider() (sequence.Provider, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for sequence provider: %w", err)
	}
	dialect, err := c.dialect()
	if err != nil {
		return nil, err
	}

	switch dialect {
	case database.DialectPostgreSQL:
		return sequencePostgreSQL.NewPostgreSQLSequenceRepository(db, c.tables), nil
	default:
		return sequenceMySQL.NewMySQLSequenceRepository(db, c.tables), nil
	}
}

func (c *Container) initEventRepository() (eventstoreUseCase.EventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for event repository: %w", err)
	}
	dialect, err := c.dialect()
	if err != nil {
		return nil, err
	}

	switch dialect {
	case database.DialectPostgreSQL:
		return eventstorePostgreSQL.NewPostgreSQLEventRepository(db, c.tables), nil
	default:
		return eventstoreMySQL.NewMySQLEventRepository(db, c.tables), nil
	}
}

func (c *Container) initOutboxRepository() (outboxUseCase.OutboxRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}
	dialect, err := c.dialect()
	if err != nil {
		return nil, err
	}

	switch dialect {
	case database.DialectPostgreSQL:
		return outboxPostgreSQL.NewPostgreSQLOutboxRepository(db, c.tables), nil
	default:
		return outboxMySQL.NewMySQLOutboxRepository(db, c.tables), nil
	}
}

func (c *Container) initInboxRepository() (inboxUseCase.InboxRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for inbox repository: %w", err)
	}
	dialect, err := c.dialect()
	if err != nil {
		return nil, err
	}

	switch dialect {
	case database.DialectPostgreSQL:
		return inboxPostgreSQL.NewPostgreSQLInboxRepository(db, c.tables), nil
	default:
		return inboxMySQL.NewMySQLInboxRepository(db, c.tables), nil
	}
}

func (c *Container) initCheckpointRepository() (perspectiveUseCase.CheckpointRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for checkpoint repository: %w", err)
	}
	dialect, err := c.dialect()
	if err != nil {
		return nil, err
	}

	switch dialect {
	case database.DialectPostgreSQL:
		return perspectivePostgreSQL.NewPostgreSQLCheckpointRepository(db, c.tables), nil
	default:
		return perspectiveMySQL.NewMySQLCheckpointRepository(db, c.tables), nil
	}
}

func (c *Container) initInstanceRepository() (coordinatorUseCase.InstanceRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for instance repository: %w", err)
	}
	dialect, err := c.dialect()
	if err != nil {
		return nil, err
	}

	switch dialect {
	case database.DialectPostgreSQL:
		return coordinatorPostgreSQL.NewPostgreSQLInstanceRepository(db, c.tables), nil
	default:
		return coordinatorMySQL.NewMySQLInstanceRepository(db, c.tables), nil
	}
}

func (c *Container) initPartitionRepository() (coordinatorUseCase.PartitionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for partition repository: %w", err)
	}
	dialect, err := c.dialect()
	if err != nil {
		return nil, err
	}

	switch dialect {
	case database.DialectPostgreSQL:
		return coordinatorPostgreSQL.NewPostgreSQLPartitionRepository(db, c.tables), nil
	default:
		return coordinatorMySQL.NewMySQLPartitionRepository(db, c.tables), nil
	}
}
