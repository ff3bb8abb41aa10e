// Package postgresql provides service instance and partition persistence for PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/coordinator/domain"
	"github.com/allisson/whizbang/internal/database"
	apperrors "github.com/allisson/whizbang/internal/errors"
)

const instanceColumns = `instance_id, service_name, host_name, process_id, started_at, last_heartbeat_at, metadata`

// PostgreSQLInstanceRepository handles service instance persistence for PostgreSQL
type PostgreSQLInstanceRepository struct {
	db     *sql.DB
	tables database.Tables
}

// NewPostgreSQLInstanceRepository creates a new PostgreSQLInstanceRepository
func NewPostgreSQLInstanceRepository(db *sql.DB, tables database.Tables) *PostgreSQLInstanceRepository {
	return &PostgreSQLInstanceRepository{db: db, tables: tables}
}

// Heartbeat inserts the instance or refreshes its heartbeat
func (r *PostgreSQLInstanceRepository) Heartbeat(ctx context.Context, instance *domain.ServiceInstance) error {
	metadata, err := json.Marshal(instance.Metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal instance metadata")
	}

	query := r.tables.Expand(`INSERT INTO {{service_instances}} (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instance_id) DO UPDATE
		SET last_heartbeat_at = EXCLUDED.last_heartbeat_at, metadata = EXCLUDED.metadata`)

	_, err = database.GetTx(ctx, r.db).ExecContext(ctx, query, instance.InstanceID, instance.ServiceName,
		instance.HostName, instance.ProcessID, instance.StartedAt, instance.LastHeartbeatAt, metadata)
	if err != nil {
		return apperrors.Wrap(err, "failed to record heartbeat")
	}
	return nil
}

// ListLive returns the ids of instances whose heartbeat is at or after since
func (r *PostgreSQLInstanceRepository) ListLive(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	query := r.tables.Expand(`SELECT instance_id FROM {{service_instances}}
		WHERE last_heartbeat_at >= $1 ORDER BY instance_id`)

	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query, since)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list live instances")
	}
	defer rows.Close() //nolint:errcheck

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan instance id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate live instances")
	}
	return ids, nil
}

// Get retrieves an instance by id
func (r *PostgreSQLInstanceRepository) Get(ctx context.Context, instanceID uuid.UUID) (*domain.ServiceInstance, error) {
	query := r.tables.Expand(`SELECT ` + instanceColumns + ` FROM {{service_instances}} WHERE instance_id = $1`)

	instance, err := scanInstance(database.GetTx(ctx, r.db).QueryRowContext(ctx, query, instanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get instance")
	}
	return instance, nil
}

// List returns every registered instance, most recent heartbeat first
func (r *PostgreSQLInstanceRepository) List(ctx context.Context) ([]*domain.ServiceInstance, error) {
	query := r.tables.Expand(`SELECT ` + instanceColumns + ` FROM {{service_instances}}
		ORDER BY last_heartbeat_at DESC, instance_id ASC`)

	rows, err := database.GetTx(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list instances")
	}
	defer rows.Close() //nolint:errcheck

	var instances []*domain.ServiceInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan instance")
		}
		instances = append(instances, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate instances")
	}
	return instances, nil
}

// Delete removes an instance. Deleting an unknown instance is not an error.
func (r *PostgreSQLInstanceRepository) Delete(ctx context.Context, instanceID uuid.UUID) error {
	query := r.tables.Expand(`DELETE FROM {{service_instances}} WHERE instance_id = $1`)

	if _, err := database.GetTx(ctx, r.db).ExecContext(ctx, query, instanceID); err != nil {
		return apperrors.Wrap(err, "failed to delete instance")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*domain.ServiceInstance, error) {
	var (
		instance domain.ServiceInstance
		metadata []byte
	)
	err := row.Scan(&instance.InstanceID, &instance.ServiceName, &instance.HostName, &instance.ProcessID,
		&instance.StartedAt, &instance.LastHeartbeatAt, &metadata)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(metadata, &instance.Metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal instance metadata")
	}
	return &instance, nil
}
