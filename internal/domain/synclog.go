package domain

import (
	"context"
	"time"
)

// SyncStatus represents the lifecycle of a single sync attempt.
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
)

// Terminal reports whether no further mutation of the log is allowed.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// Trigger sources recorded on sync logs.
const (
	TriggeredByManual    = "manual"
	TriggeredByScheduled = "scheduled"
	TriggeredByForced    = "forced"
)

// SyncLog records one sync attempt for a (user, platform) pair. Polling
// clients treat any non-terminal status as still running.
type SyncLog struct {
	ID           string
	TenantID     string
	UserID       string
	Platform     Platform
	Status       SyncStatus
	TriggeredBy  string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ItemsSynced  int
	Created      int
	Updated      int
	Skipped      int
	ErrorMessage string
}

// SyncResult carries reconciliation counts into the terminal transition.
type SyncResult struct {
	ItemsSynced int
	Created     int
	Updated     int
	Skipped     int
}

// SyncLogRepository captures persistence operations for sync logs.
type SyncLogRepository interface {
	// Create persists a pending log. Implementations must refuse the insert
	// with ErrSyncInProgress if a non-terminal log already exists for the
	// pair. When force is set the in-flight log is marked failed and the new
	// pending log takes its place, so at most one non-terminal log ever
	// exists per pair.
	Create(ctx context.Context, entry SyncLog, force bool) error
	Latest(ctx context.Context, tenantID, userID string, platform Platform) (*SyncLog, error)
	List(ctx context.Context, tenantID, userID string, platform Platform, limit int) ([]SyncLog, error)
	MarkInProgress(ctx context.Context, tenantID, syncID string) error
	// Finish records the terminal status. No-op on an already terminal log.
	Finish(ctx context.Context, tenantID, syncID string, status SyncStatus, result SyncResult, errorMessage string, finishedAt time.Time) error
}
