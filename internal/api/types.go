package api

import (
	"errors"
	"strings"
	"time"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

// ConnectResponse carries the provider authorization URL the client must open.
type ConnectResponse struct {
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

// UpdateSettingsRequest mutates the auto-sync settings of a connection.
type UpdateSettingsRequest struct {
	AutoSync      bool   `json:"auto_sync"`
	SyncFrequency string `json:"sync_frequency"`
}

// Validate checks the request and resolves the frequency value.
func (r *UpdateSettingsRequest) Validate() (domain.SyncFrequency, error) {
	if strings.TrimSpace(r.SyncFrequency) == "" {
		return domain.SyncFrequencyDaily, nil
	}
	return domain.ParseSyncFrequency(r.SyncFrequency)
}

// TriggerSyncRequest optionally forces a sync past an in-progress guard.
type TriggerSyncRequest struct {
	ForceSync bool `json:"force_sync"`
}

// AdjustPlanRequest asks the planner for a training plan adjustment.
type AdjustPlanRequest struct {
	Goal          string `json:"goal"`
	RecentSummary string `json:"recent_summary"`
	Feedback      string `json:"feedback"`
}

// Validate enforces the required fields of the request.
func (r *AdjustPlanRequest) Validate() error {
	if strings.TrimSpace(r.Goal) == "" {
		return errors.New("goal is required")
	}
	if strings.TrimSpace(r.RecentSummary) == "" {
		return errors.New("recent_summary is required")
	}
	return nil
}

// ConnectionView is the API projection of a connection. Tokens never leave the service.
type ConnectionView struct {
	Platform      string     `json:"platform"`
	State         string     `json:"state"`
	Active        bool       `json:"active"`
	AutoSync      bool       `json:"auto_sync"`
	SyncFrequency string     `json:"sync_frequency"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ListConnectionsResponse wraps the connection collection.
type ListConnectionsResponse struct {
	Items []ConnectionView `json:"items"`
}

// SyncLogView is the API projection of a sync attempt.
type SyncLogView struct {
	SyncID       string     `json:"sync_id"`
	Platform     string     `json:"platform"`
	Status       string     `json:"status"`
	TriggeredBy  string     `json:"triggered_by"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ItemsSynced  int        `json:"items_synced"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// SyncHistoryResponse wraps recent sync attempts, newest first.
type SyncHistoryResponse struct {
	Items []SyncLogView `json:"items"`
}

// ActivityView is the API projection of an activity.
type ActivityView struct {
	ID             string    `json:"id"`
	ActivityType   string    `json:"activity_type"`
	StartedAt      time.Time `json:"started_at"`
	DurationMin    int       `json:"duration_min"`
	DistanceMeters float64   `json:"distance_meters"`
	Source         string    `json:"source"`
	ExternalID     string    `json:"external_id,omitempty"`
}

// ListActivitiesResponse wraps an activity page with its continuation token.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toConnectionView(conn domain.IntegrationConnection) ConnectionView {
	return ConnectionView{
		Platform:      string(conn.Platform),
		State:         string(conn.State),
		Active:        conn.Active,
		AutoSync:      conn.AutoSync,
		SyncFrequency: string(conn.SyncFrequency),
		LastSyncedAt:  conn.LastSyncedAt,
		CreatedAt:     conn.CreatedAt,
	}
}

func toSyncLogView(entry domain.SyncLog) SyncLogView {
	return SyncLogView{
		SyncID:       entry.ID,
		Platform:     string(entry.Platform),
		Status:       string(entry.Status),
		TriggeredBy:  entry.TriggeredBy,
		StartedAt:    entry.StartedAt,
		FinishedAt:   entry.FinishedAt,
		ItemsSynced:  entry.ItemsSynced,
		Created:      entry.Created,
		Updated:      entry.Updated,
		Skipped:      entry.Skipped,
		ErrorMessage: entry.ErrorMessage,
	}
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ID:             activity.ID,
		ActivityType:   activity.ActivityType,
		StartedAt:      activity.StartedAt,
		DurationMin:    activity.DurationMin,
		DistanceMeters: activity.DistanceMeters,
		Source:         activity.Source,
		ExternalID:     activity.ExternalID,
	}
}
