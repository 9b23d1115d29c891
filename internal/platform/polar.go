package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

const polarDefaultBaseURL = "https://www.polaraccesslink.com/v3"

// PolarClient lists exercises from the Polar AccessLink API. AccessLink does
// not expose a stable numeric id on every exercise payload, so ExternalID may
// be empty and reconciliation falls back to the heuristic match.
type PolarClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPolarClient constructs a client with sane defaults.
func NewPolarClient() *PolarClient {
	return &PolarClient{
		baseURL:    polarDefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewPolarClientWithBaseURL overrides the API host, used by tests.
func NewPolarClientWithBaseURL(baseURL string) *PolarClient {
	c := NewPolarClient()
	c.baseURL = baseURL
	return c
}

// Platform implements Client.
func (c *PolarClient) Platform() domain.Platform {
	return domain.PlatformPolar
}

type polarExercise struct {
	ID             string    `json:"id,omitempty"`
	Sport          string    `json:"sport"`
	StartTime      time.Time `json:"start_time"`
	DurationSecs   int       `json:"duration_seconds"`
	DistanceMeters float64   `json:"distance"`
	UploadTime     time.Time `json:"upload_time"`
}

// ListActivities fetches exercises recorded after since.
func (c *PolarClient) ListActivities(ctx context.Context, accessToken string, since time.Time) ([]ExternalActivity, error) {
	endpoint := fmt.Sprintf("%s/exercises", c.baseURL)
	body, err := fetchJSON(ctx, c.httpClient, endpoint, accessToken, domain.PlatformPolar)
	if err != nil {
		return nil, err
	}

	var rows []polarExercise
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode polar exercises: %w", err)
	}

	out := make([]ExternalActivity, 0, len(rows))
	for _, row := range rows {
		if !since.IsZero() && row.StartTime.Before(since) {
			continue
		}
		modified := row.UploadTime
		if modified.IsZero() {
			modified = row.StartTime
		}
		out = append(out, ExternalActivity{
			ExternalID:     row.ID,
			ActivityType:   row.Sport,
			StartedAt:      row.StartTime.UTC(),
			DurationMin:    row.DurationSecs / 60,
			DistanceMeters: row.DistanceMeters,
			ModifiedAt:     modified.UTC(),
		})
	}
	return out, nil
}
