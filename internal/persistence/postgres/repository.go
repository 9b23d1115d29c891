// Package postgres provides pgx-backed persistence for connections, sync
// logs, activities, and the transactional outbox.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MartinT518/MomentumTracker-sub003/internal/events"
)

// Repository provides Postgres-backed persistence. Every query runs inside a
// transaction that sets the app.tenant_id GUC so row-level security applies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// withTenantTx runs fn inside a tenant-scoped transaction.
func (r *Repository) withTenantTx(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isUniqueViolation reports whether err is a unique-violation on the named
// constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"integration.sync_completed": {
		Topic:         "integration_sync_events",
		SchemaSubject: "integration_sync_events-value",
	},
	"integration.connection_status_changed": {
		Topic:         "integration_connection_events",
		SchemaSubject: "integration_connection_events-value",
	},
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, aggregateType, aggregateID, eventType, partitionKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, time.Now().UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func connectionStatusEvent(tenantID, connectionID, userID, platform, state string) events.ConnectionStatusChanged {
	return events.ConnectionStatusChanged{
		ConnectionID: connectionID,
		TenantID:     tenantID,
		UserID:       userID,
		Platform:     platform,
		State:        state,
		OccurredAt:   time.Now().UTC(),
	}
}
