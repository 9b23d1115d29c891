package domain

import (
	"context"
	"time"
)

// Activity represents the canonical workout record stored in PostgreSQL.
// Source is "manual" for hand-entered rows or the platform identifier for
// synced rows; ExternalID is empty when the platform provides none.
type Activity struct {
	ID                 string
	TenantID           string
	UserID             string
	ActivityType       string
	StartedAt          time.Time
	DurationMin        int
	DistanceMeters     float64
	Source             string
	ExternalID         string
	ExternalModifiedAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Cursor models the pagination token for activity listings.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// ActivityRepository captures persistence operations for activities.
type ActivityRepository interface {
	FindByExternalID(ctx context.Context, tenantID, userID, source, externalID string) (*Activity, error)
	// FindByDay returns the user's activities of the given type starting on
	// the same UTC calendar day, for heuristic matching.
	FindByDay(ctx context.Context, tenantID, userID, activityType string, day time.Time) ([]Activity, error)
	Create(ctx context.Context, activity Activity) error
	Update(ctx context.Context, activity Activity) error
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}
