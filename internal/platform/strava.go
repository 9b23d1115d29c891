package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

const stravaDefaultBaseURL = "https://www.strava.com/api/v3"

// StravaClient lists athlete activities from the Strava REST API.
type StravaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStravaClient constructs a client with sane defaults.
func NewStravaClient() *StravaClient {
	return &StravaClient{
		baseURL:    stravaDefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewStravaClientWithBaseURL overrides the API host, used by tests.
func NewStravaClientWithBaseURL(baseURL string) *StravaClient {
	c := NewStravaClient()
	c.baseURL = baseURL
	return c
}

// Platform implements Client.
func (c *StravaClient) Platform() domain.Platform {
	return domain.PlatformStrava
}

type stravaActivity struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	SportType     string    `json:"sport_type"`
	Distance      float64   `json:"distance"`
	MovingTime    int       `json:"moving_time"`
	StartDate     time.Time `json:"start_date"`
	UpdatedAtUnix int64     `json:"updated_at,omitempty"`
}

// ListActivities fetches activities started after since.
func (c *StravaClient) ListActivities(ctx context.Context, accessToken string, since time.Time) ([]ExternalActivity, error) {
	query := url.Values{"per_page": {"100"}}
	if !since.IsZero() {
		query.Set("after", strconv.FormatInt(since.Unix(), 10))
	}

	endpoint := fmt.Sprintf("%s/athlete/activities?%s", c.baseURL, query.Encode())
	body, err := fetchJSON(ctx, c.httpClient, endpoint, accessToken, domain.PlatformStrava)
	if err != nil {
		return nil, err
	}

	var rows []stravaActivity
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode strava activities: %w", err)
	}

	out := make([]ExternalActivity, 0, len(rows))
	for _, row := range rows {
		modified := row.StartDate
		if row.UpdatedAtUnix > 0 {
			modified = time.Unix(row.UpdatedAtUnix, 0).UTC()
		}
		out = append(out, ExternalActivity{
			ExternalID:     strconv.FormatInt(row.ID, 10),
			ActivityType:   row.SportType,
			StartedAt:      row.StartDate.UTC(),
			DurationMin:    row.MovingTime / 60,
			DistanceMeters: row.Distance,
			ModifiedAt:     modified,
		})
	}
	return out, nil
}

// fetchJSON performs an authenticated GET and maps auth failures to ErrTokenExpired.
func fetchJSON(ctx context.Context, client *http.Client, endpoint, accessToken string, p domain.Platform) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s api request: %w", p, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrTokenExpired
	case resp.StatusCode >= 300:
		return nil, &UpstreamError{Platform: p, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
