// Package events defines cross-service event payloads emitted by the integration service.
package events

import "time"

// SyncCompleted represents the message emitted when a sync attempt reaches a terminal status.
type SyncCompleted struct {
	SyncID      string    `json:"sync_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	Platform    string    `json:"platform"`
	Status      string    `json:"status"`
	ItemsSynced int       `json:"items_synced"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Skipped     int       `json:"skipped"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ConnectionStatusChanged tracks connection lifecycle transitions (connected,
// connected_degraded, disconnected) for notification flows.
type ConnectionStatusChanged struct {
	ConnectionID string    `json:"connection_id"`
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	Platform     string    `json:"platform"`
	State        string    `json:"state"`
	OccurredAt   time.Time `json:"occurred_at"`
}
