package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

const connectionColumns = `connection_id, tenant_id, user_id, platform, access_token, refresh_token, expires_at, state, active, auto_sync, sync_frequency, last_synced_at, created_at, updated_at`

func scanConnection(row pgx.Row) (*domain.IntegrationConnection, error) {
	var conn domain.IntegrationConnection
	var expiresAt, lastSyncedAt *time.Time
	if err := row.Scan(&conn.ID, &conn.TenantID, &conn.UserID, &conn.Platform, &conn.AccessToken, &conn.RefreshToken, &expiresAt, &conn.State, &conn.Active, &conn.AutoSync, &conn.SyncFrequency, &lastSyncedAt, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, err
	}
	if expiresAt != nil {
		conn.ExpiresAt = *expiresAt
	}
	conn.LastSyncedAt = lastSyncedAt
	return &conn, nil
}

// GetByUserPlatform returns the connection for the pair, nil if none exists.
func (r *Repository) GetByUserPlatform(ctx context.Context, tenantID, userID string, platform domain.Platform) (*domain.IntegrationConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM integration_connections WHERE tenant_id=$1 AND user_id=$2 AND platform=$3`

	var conn *domain.IntegrationConnection
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		found, err := scanConnection(tx.QueryRow(ctx, query, tenantID, userID, platform))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		conn = found
		return nil
	})
	return conn, err
}

// ListByUser returns all of the user's connections.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string) ([]domain.IntegrationConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM integration_connections WHERE tenant_id=$1 AND user_id=$2 ORDER BY platform`

	out := make([]domain.IntegrationConnection, 0)
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, tenantID, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			conn, err := scanConnection(rows)
			if err != nil {
				return err
			}
			out = append(out, *conn)
		}
		return rows.Err()
	})
	return out, err
}

// Upsert creates the connection or re-activates the existing row for the
// pair. The unique index on (tenant_id, user_id, platform) enforces the
// at-most-one invariant; conflicts update credentials and state in place.
func (r *Repository) Upsert(ctx context.Context, conn domain.IntegrationConnection) error {
	const stmt = `INSERT INTO integration_connections
        (connection_id, tenant_id, user_id, platform, access_token, refresh_token, expires_at, state, active, auto_sync, sync_frequency, last_synced_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
        ON CONFLICT (tenant_id, user_id, platform) DO UPDATE SET
            access_token=EXCLUDED.access_token,
            refresh_token=EXCLUDED.refresh_token,
            expires_at=EXCLUDED.expires_at,
            state=EXCLUDED.state,
            active=EXCLUDED.active,
            auto_sync=EXCLUDED.auto_sync,
            sync_frequency=EXCLUDED.sync_frequency,
            updated_at=EXCLUDED.updated_at
        RETURNING connection_id`

	return r.withTenantTx(ctx, conn.TenantID, func(tx pgx.Tx) error {
		var connectionID string
		err := tx.QueryRow(ctx, stmt,
			conn.ID,
			conn.TenantID,
			conn.UserID,
			conn.Platform,
			conn.AccessToken,
			conn.RefreshToken,
			nullIfZeroTime(conn.ExpiresAt),
			conn.State,
			conn.Active,
			conn.AutoSync,
			conn.SyncFrequency,
			conn.LastSyncedAt,
			conn.CreatedAt,
			conn.UpdatedAt,
		).Scan(&connectionID)
		if err != nil {
			return err
		}

		event := connectionStatusEvent(conn.TenantID, connectionID, conn.UserID, string(conn.Platform), string(conn.State))
		return insertOutbox(ctx, tx, conn.TenantID, "connection", connectionID, "integration.connection_status_changed", connectionID, event)
	})
}

// UpdateSettings updates the auto-sync flag and frequency.
func (r *Repository) UpdateSettings(ctx context.Context, tenantID, userID string, platform domain.Platform, autoSync bool, frequency domain.SyncFrequency) (*domain.IntegrationConnection, error) {
	stmt := `UPDATE integration_connections SET auto_sync=$4, sync_frequency=$5, updated_at=NOW()
        WHERE tenant_id=$1 AND user_id=$2 AND platform=$3
        RETURNING ` + connectionColumns

	var conn *domain.IntegrationConnection
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		found, err := scanConnection(tx.QueryRow(ctx, stmt, tenantID, userID, platform, autoSync, frequency))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrConnectionNotFound
			}
			return err
		}
		conn = found
		return nil
	})
	return conn, err
}

// Disconnect soft-disables the connection and pauses auto-sync.
func (r *Repository) Disconnect(ctx context.Context, tenantID, userID string, platform domain.Platform) error {
	const stmt = `UPDATE integration_connections
        SET active=FALSE, auto_sync=FALSE, state=$4, updated_at=NOW()
        WHERE tenant_id=$1 AND user_id=$2 AND platform=$3
        RETURNING connection_id`

	return r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		var connectionID string
		if err := tx.QueryRow(ctx, stmt, tenantID, userID, platform, domain.ConnectionStateDisconnected).Scan(&connectionID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrConnectionNotFound
			}
			return err
		}

		event := connectionStatusEvent(tenantID, connectionID, userID, string(platform), string(domain.ConnectionStateDisconnected))
		return insertOutbox(ctx, tx, tenantID, "connection", connectionID, "integration.connection_status_changed", connectionID, event)
	})
}

// SetState records a lifecycle transition, emitting the status event.
func (r *Repository) SetState(ctx context.Context, tenantID, connectionID string, state domain.ConnectionState) error {
	const stmt = `UPDATE integration_connections SET state=$3, updated_at=NOW()
        WHERE tenant_id=$1 AND connection_id=$2
        RETURNING user_id, platform`

	return r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		var userID, platform string
		if err := tx.QueryRow(ctx, stmt, tenantID, connectionID, state).Scan(&userID, &platform); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrConnectionNotFound
			}
			return err
		}

		event := connectionStatusEvent(tenantID, connectionID, userID, platform, string(state))
		return insertOutbox(ctx, tx, tenantID, "connection", connectionID, "integration.connection_status_changed", connectionID, event)
	})
}

// SaveTokens stores refreshed credentials in place.
func (r *Repository) SaveTokens(ctx context.Context, tenantID, connectionID, accessToken, refreshToken string, expiresAt time.Time) error {
	const stmt = `UPDATE integration_connections
        SET access_token=$3, refresh_token=$4, expires_at=$5, updated_at=NOW()
        WHERE tenant_id=$1 AND connection_id=$2`

	return r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, tenantID, connectionID, accessToken, refreshToken, nullIfZeroTime(expiresAt))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrConnectionNotFound
		}
		return nil
	})
}

// MarkSynced records the completion watermark used by the daily schedule.
func (r *Repository) MarkSynced(ctx context.Context, tenantID, connectionID string, at time.Time) error {
	const stmt = `UPDATE integration_connections SET last_synced_at=$3, updated_at=NOW()
        WHERE tenant_id=$1 AND connection_id=$2`

	return r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, stmt, tenantID, connectionID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrConnectionNotFound
		}
		return nil
	})
}

// ListDueAutoSync returns connections whose auto-sync schedule is due. This
// crosses tenants, so it runs outside the tenant GUC on the scheduler role.
func (r *Repository) ListDueAutoSync(ctx context.Context, now time.Time, dailyInterval time.Duration, limit int) ([]domain.IntegrationConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM integration_connections
        WHERE active AND auto_sync AND state=$1
          AND (sync_frequency=$2 OR last_synced_at IS NULL OR last_synced_at <= $3)
        ORDER BY last_synced_at NULLS FIRST
        LIMIT $4`

	rows, err := r.pool.Query(ctx, query, domain.ConnectionStateConnected, domain.SyncFrequencyRealtime, now.Add(-dailyInterval), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.IntegrationConnection, 0, limit)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conn)
	}
	return out, rows.Err()
}

func nullIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
