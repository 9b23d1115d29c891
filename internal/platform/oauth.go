package platform

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
)

var oauthEndpoints = map[domain.Platform]oauth2.Endpoint{
	domain.PlatformStrava: {
		AuthURL:  "https://www.strava.com/oauth/authorize",
		TokenURL: "https://www.strava.com/oauth/token",
	},
	domain.PlatformGarmin: {
		AuthURL:  "https://connect.garmin.com/oauth2Confirm",
		TokenURL: "https://connectapi.garmin.com/di-oauth2-service/oauth/token",
	},
	domain.PlatformPolar: {
		AuthURL:  "https://flow.polar.com/oauth2/authorization",
		TokenURL: "https://polarremote.com/v2/oauth2/token",
	},
}

var oauthScopes = map[domain.Platform][]string{
	domain.PlatformStrava: {"activity:read_all"},
	domain.PlatformGarmin: {"activity_api"},
	domain.PlatformPolar:  {"accesslink.read_all"},
}

// NewOAuthConfig builds the oauth2 config for a platform. The redirect URL
// points back at the service's callback endpoint for that platform.
func NewOAuthConfig(p domain.Platform, clientID, clientSecret, redirectBase string) (*oauth2.Config, error) {
	endpoint, ok := oauthEndpoints[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, p)
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
		RedirectURL:  fmt.Sprintf("%s/v1/integrations/callback/%s", redirectBase, p),
		Scopes:       oauthScopes[p],
	}, nil
}

// Refresher exchanges refresh tokens for fresh credentials.
type Refresher struct {
	configs map[domain.Platform]*oauth2.Config
}

// NewRefresher constructs a Refresher over the provided per-platform configs.
func NewRefresher(configs map[domain.Platform]*oauth2.Config) *Refresher {
	return &Refresher{configs: configs}
}

// Refresh obtains a new token pair using the stored refresh token.
func (r *Refresher) Refresh(ctx context.Context, p domain.Platform, refreshToken string) (*oauth2.Token, error) {
	cfg, ok := r.configs[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, p)
	}
	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh %s token: %w", p, err)
	}
	return token, nil
}
