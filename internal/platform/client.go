// Package platform implements clients for the supported fitness platform APIs.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

// ErrTokenExpired indicates the platform rejected the access token; callers
// should refresh and retry once.
var ErrTokenExpired = errors.New("platform access token expired")

// UpstreamError reports a non-auth platform API failure. It is surfaced as a
// failed sync log, not retried automatically.
type UpstreamError struct {
	Platform   domain.Platform
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s api error: status %d: %s", e.Platform, e.StatusCode, e.Body)
}

// ExternalActivity is a workout record as fetched from a platform API.
type ExternalActivity struct {
	ExternalID     string
	ActivityType   string
	StartedAt      time.Time
	DurationMin    int
	DistanceMeters float64
	ModifiedAt     time.Time
}

// Client lists activities from one platform. Implementations map platform
// payloads onto ExternalActivity and translate auth failures to ErrTokenExpired.
type Client interface {
	Platform() domain.Platform
	ListActivities(ctx context.Context, accessToken string, since time.Time) ([]ExternalActivity, error)
}

// Registry resolves clients by platform.
type Registry map[domain.Platform]Client

// NewRegistry builds a Registry from the provided clients.
func NewRegistry(clients ...Client) Registry {
	out := make(Registry, len(clients))
	for _, c := range clients {
		out[c.Platform()] = c
	}
	return out
}

// Client returns the client for the platform, if registered.
func (r Registry) Client(p domain.Platform) (Client, bool) {
	c, ok := r[p]
	return c, ok
}
