package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

const garminDefaultBaseURL = "https://apis.garmin.com/wellness-api/rest"

// GarminClient lists activity summaries from the Garmin Wellness API.
type GarminClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGarminClient constructs a client with sane defaults.
func NewGarminClient() *GarminClient {
	return &GarminClient{
		baseURL:    garminDefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewGarminClientWithBaseURL overrides the API host, used by tests.
func NewGarminClientWithBaseURL(baseURL string) *GarminClient {
	c := NewGarminClient()
	c.baseURL = baseURL
	return c
}

// Platform implements Client.
func (c *GarminClient) Platform() domain.Platform {
	return domain.PlatformGarmin
}

type garminActivity struct {
	SummaryID       string  `json:"summaryId"`
	ActivityType    string  `json:"activityType"`
	StartTimeSecs   int64   `json:"startTimeInSeconds"`
	DurationSecs    int     `json:"durationInSeconds"`
	DistanceMeters  float64 `json:"distanceInMeters"`
	LastUpdatedSecs int64   `json:"lastUpdatedInSeconds"`
}

// ListActivities fetches activity summaries uploaded after since.
func (c *GarminClient) ListActivities(ctx context.Context, accessToken string, since time.Time) ([]ExternalActivity, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("uploadStartTimeInSeconds", strconv.FormatInt(since.Unix(), 10))
	}

	endpoint := fmt.Sprintf("%s/activities?%s", c.baseURL, query.Encode())
	body, err := fetchJSON(ctx, c.httpClient, endpoint, accessToken, domain.PlatformGarmin)
	if err != nil {
		return nil, err
	}

	var rows []garminActivity
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode garmin activities: %w", err)
	}

	out := make([]ExternalActivity, 0, len(rows))
	for _, row := range rows {
		started := time.Unix(row.StartTimeSecs, 0).UTC()
		modified := started
		if row.LastUpdatedSecs > 0 {
			modified = time.Unix(row.LastUpdatedSecs, 0).UTC()
		}
		out = append(out, ExternalActivity{
			ExternalID:     row.SummaryID,
			ActivityType:   row.ActivityType,
			StartedAt:      started,
			DurationMin:    row.DurationSecs / 60,
			DistanceMeters: row.DistanceMeters,
			ModifiedAt:     modified,
		})
	}
	return out, nil
}
