package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConnected is returned when no active connection exists for a (user, platform) pair.
	ErrNotConnected = errors.New("no active connection for platform")
	// ErrSyncInProgress indicates a non-terminal sync log already exists for the pair.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrUnsupportedPlatform is returned for platform identifiers outside the known set.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrConnectionNotFound is returned when a connection cannot be located.
	ErrConnectionNotFound = errors.New("connection not found")
)

// ConnectionState tracks the lifecycle of an integration connection.
type ConnectionState string

const (
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDegraded     ConnectionState = "connected_degraded"
	ConnectionStateDisconnected ConnectionState = "disconnected"
)

// IntegrationConnection holds the OAuth credentials and sync settings for one (user, platform) pair.
// At most one active connection exists per pair.
type IntegrationConnection struct {
	ID            string
	TenantID      string
	UserID        string
	Platform      Platform
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	State         ConnectionState
	Active        bool
	AutoSync      bool
	SyncFrequency SyncFrequency
	LastSyncedAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TokenExpired reports whether the access token needs a refresh before use.
func (c *IntegrationConnection) TokenExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}

// ConnectionRepository captures persistence operations for integration connections.
type ConnectionRepository interface {
	GetByUserPlatform(ctx context.Context, tenantID, userID string, platform Platform) (*IntegrationConnection, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]IntegrationConnection, error)
	// Upsert creates the connection or re-activates the existing row for the pair.
	Upsert(ctx context.Context, conn IntegrationConnection) error
	UpdateSettings(ctx context.Context, tenantID, userID string, platform Platform, autoSync bool, frequency SyncFrequency) (*IntegrationConnection, error)
	// Disconnect soft-disables the connection; auto-sync checks treat it as absent afterwards.
	Disconnect(ctx context.Context, tenantID, userID string, platform Platform) error
	SetState(ctx context.Context, tenantID, connectionID string, state ConnectionState) error
	SaveTokens(ctx context.Context, tenantID, connectionID, accessToken, refreshToken string, expiresAt time.Time) error
	MarkSynced(ctx context.Context, tenantID, connectionID string, at time.Time) error
	// ListDueAutoSync returns active connected connections whose schedule is due at now.
	ListDueAutoSync(ctx context.Context, now time.Time, dailyInterval time.Duration, limit int) ([]IntegrationConnection, error)
}
