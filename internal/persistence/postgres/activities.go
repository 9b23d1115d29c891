package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

const activityColumns = `activity_id, tenant_id, user_id, activity_type, started_at, duration_min, distance_meters, source, external_id, external_modified_at, created_at, updated_at`

// ActivityRepo exposes the activities table as its own repository so its
// method set does not clash with the connection and sync-log ones.
type ActivityRepo struct {
	*Repository
}

// Activities returns the activity repository view.
func (r *Repository) Activities() *ActivityRepo {
	return &ActivityRepo{Repository: r}
}

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var activity domain.Activity
	var externalID *string
	if err := row.Scan(&activity.ID, &activity.TenantID, &activity.UserID, &activity.ActivityType, &activity.StartedAt, &activity.DurationMin, &activity.DistanceMeters, &activity.Source, &externalID, &activity.ExternalModifiedAt, &activity.CreatedAt, &activity.UpdatedAt); err != nil {
		return nil, err
	}
	if externalID != nil {
		activity.ExternalID = *externalID
	}
	return &activity, nil
}

// FindByExternalID looks up a synced row by its platform identifier.
func (r *ActivityRepo) FindByExternalID(ctx context.Context, tenantID, userID, source, externalID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
        WHERE tenant_id=$1 AND user_id=$2 AND source=$3 AND external_id=$4`

	var activity *domain.Activity
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		found, err := scanActivity(tx.QueryRow(ctx, query, tenantID, userID, source, externalID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		activity = found
		return nil
	})
	return activity, err
}

// FindByDay returns the user's activities of one type on a UTC calendar day.
func (r *ActivityRepo) FindByDay(ctx context.Context, tenantID, userID, activityType string, day time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
        WHERE tenant_id=$1 AND user_id=$2 AND activity_type=$3
          AND started_at >= $4 AND started_at < $5`

	dayStart := day.UTC().Truncate(24 * time.Hour)
	out := make([]domain.Activity, 0)
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, tenantID, userID, activityType, dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			activity, err := scanActivity(rows)
			if err != nil {
				return err
			}
			out = append(out, *activity)
		}
		return rows.Err()
	})
	return out, err
}

// Create persists a reconciled activity. The partial unique index on
// (tenant_id, user_id, source, external_id) backs the no-duplicate invariant.
func (r *ActivityRepo) Create(ctx context.Context, activity domain.Activity) error {
	const stmt = `INSERT INTO activities
        (activity_id, tenant_id, user_id, activity_type, started_at, duration_min, distance_meters, source, external_id, external_modified_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	return r.withTenantTx(ctx, activity.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			activity.ID,
			activity.TenantID,
			activity.UserID,
			activity.ActivityType,
			activity.StartedAt,
			activity.DurationMin,
			activity.DistanceMeters,
			activity.Source,
			nullIfEmpty(activity.ExternalID),
			activity.ExternalModifiedAt,
			activity.CreatedAt,
			activity.UpdatedAt,
		)
		return err
	})
}

// Update overwrites the synced fields of an existing row.
func (r *ActivityRepo) Update(ctx context.Context, activity domain.Activity) error {
	const stmt = `UPDATE activities
        SET activity_type=$3, started_at=$4, duration_min=$5, distance_meters=$6, external_modified_at=$7, updated_at=$8
        WHERE tenant_id=$1 AND activity_id=$2`

	return r.withTenantTx(ctx, activity.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt,
			activity.TenantID,
			activity.ID,
			activity.ActivityType,
			activity.StartedAt,
			activity.DurationMin,
			activity.DistanceMeters,
			activity.ExternalModifiedAt,
			activity.UpdatedAt,
		)
		return err
	})
}

// ListByUser returns activities for a user ordered by time with cursor pagination.
func (r *ActivityRepo) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND (started_at, activity_id) < ($4, $5)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}
	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT $3`

	results := make([]domain.Activity, 0, limit)
	err := r.withTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			activity, err := scanActivity(rows)
			if err != nil {
				return err
			}
			results = append(results, *activity)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}
