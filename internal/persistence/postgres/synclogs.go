package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/events"
)

const syncLogColumns = `sync_id, tenant_id, user_id, platform, status, triggered_by, started_at, finished_at, items_synced, items_created, items_updated, items_skipped, error_message`

func scanSyncLog(row pgx.Row) (*domain.SyncLog, error) {
	var entry domain.SyncLog
	var errorMessage *string
	if err := row.Scan(&entry.ID, &entry.TenantID, &entry.UserID, &entry.Platform, &entry.Status, &entry.TriggeredBy, &entry.StartedAt, &entry.FinishedAt, &entry.ItemsSynced, &entry.Created, &entry.Updated, &entry.Skipped, &errorMessage); err != nil {
		return nil, err
	}
	if errorMessage != nil {
		entry.ErrorMessage = *errorMessage
	}
	return &entry, nil
}

// Create persists a pending sync log. At most one non-terminal log may exist
// per (tenant, user, platform); the partial unique index idx_sync_logs_running
// enforces this, so two concurrent triggers cannot both insert. A forced
// trigger supersedes any in-flight log by marking it failed in the same
// transaction before inserting its own.
func (r *Repository) Create(ctx context.Context, entry domain.SyncLog, force bool) error {
	const supersede = `UPDATE sync_logs
        SET status='failed', finished_at=$4, error_message='superseded by forced sync'
        WHERE tenant_id=$1 AND user_id=$2 AND platform=$3 AND status IN ('pending','in_progress')`

	const stmt = `INSERT INTO sync_logs
        (sync_id, tenant_id, user_id, platform, status, triggered_by, started_at, items_synced, items_created, items_updated, items_skipped)
        VALUES ($1,$2,$3,$4,$5,$6,$7,0,0,0,0)`

	return r.withTenantTx(ctx, entry.TenantID, func(tx pgx.Tx) error {
		if force {
			if _, err := tx.Exec(ctx, supersede, entry.TenantID, entry.UserID, entry.Platform, entry.StartedAt); err != nil {
				return err
			}
		}

		_, err := tx.Exec(ctx, stmt,
			entry.ID,
			entry.TenantID,
			entry.UserID,
			entry.Platform,
			entry.Status,
			entry.TriggeredBy,
			entry.StartedAt,
		)
		if isUniqueViolation(err, "idx_sync_logs_running") {
			return domain.ErrSyncInProgress
		}
		return err
	})
}

// Latest returns the most recent sync log by start time, nil if none exists.
func (r *Repository) Latest(ctx context.Context, tenantID, userID string, platform domain.Platform) (*domain.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs
        WHERE tenant_id=$1 AND user_id=$2 AND platform=$3
        ORDER BY started_at DESC, sync_id DESC LIMIT 1`

	var entry *domain.SyncLog
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		found, err := scanSyncLog(tx.QueryRow(ctx, query, tenantID, userID, platform))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		entry = found
		return nil
	})
	return entry, err
}

// List returns recent sync logs, newest first.
func (r *Repository) List(ctx context.Context, tenantID, userID string, platform domain.Platform, limit int) ([]domain.SyncLog, error) {
	query := `SELECT ` + syncLogColumns + ` FROM sync_logs
        WHERE tenant_id=$1 AND user_id=$2 AND platform=$3
        ORDER BY started_at DESC, sync_id DESC LIMIT $4`

	out := make([]domain.SyncLog, 0, limit)
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, tenantID, userID, platform, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			entry, err := scanSyncLog(rows)
			if err != nil {
				return err
			}
			out = append(out, *entry)
		}
		return rows.Err()
	})
	return out, err
}

// MarkInProgress transitions a pending log to in_progress. Terminal logs are
// left untouched.
func (r *Repository) MarkInProgress(ctx context.Context, tenantID, syncID string) error {
	const stmt = `UPDATE sync_logs SET status='in_progress'
        WHERE tenant_id=$1 AND sync_id=$2 AND status='pending'`

	return r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt, tenantID, syncID)
		return err
	})
}

// Finish records the terminal status with counts and emits the sync event in
// the same transaction. Already-terminal logs are not mutated.
func (r *Repository) Finish(ctx context.Context, tenantID, syncID string, status domain.SyncStatus, result domain.SyncResult, errorMessage string, finishedAt time.Time) error {
	const stmt = `UPDATE sync_logs
        SET status=$3, finished_at=$4, items_synced=$5, items_created=$6, items_updated=$7, items_skipped=$8, error_message=$9
        WHERE tenant_id=$1 AND sync_id=$2 AND status IN ('pending','in_progress')
        RETURNING user_id, platform`

	return r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		var userID, platform string
		err := tx.QueryRow(ctx, stmt,
			tenantID,
			syncID,
			status,
			finishedAt,
			result.ItemsSynced,
			result.Created,
			result.Updated,
			result.Skipped,
			nullIfEmpty(errorMessage),
		).Scan(&userID, &platform)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		event := events.SyncCompleted{
			SyncID:      syncID,
			TenantID:    tenantID,
			UserID:      userID,
			Platform:    platform,
			Status:      string(status),
			ItemsSynced: result.ItemsSynced,
			Created:     result.Created,
			Updated:     result.Updated,
			Skipped:     result.Skipped,
			Error:       errorMessage,
			OccurredAt:  finishedAt,
		}
		return insertOutbox(ctx, tx, tenantID, "sync", syncID, "integration.sync_completed", tenantID+":"+userID, event)
	})
}
