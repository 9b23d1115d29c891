// Package domain defines the business logic for the integration service.
package domain

import "fmt"

// Platform identifies a supported third-party fitness platform.
type Platform string

const (
	PlatformStrava Platform = "strava"
	PlatformGarmin Platform = "garmin"
	PlatformPolar  Platform = "polar"
)

// SourceManual marks activities entered by hand rather than synced.
const SourceManual = "manual"

// ParsePlatform validates a platform identifier from the API layer.
func ParsePlatform(raw string) (Platform, error) {
	switch Platform(raw) {
	case PlatformStrava, PlatformGarmin, PlatformPolar:
		return Platform(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, raw)
}

// SyncFrequency controls how often auto-sync schedules a connection.
type SyncFrequency string

const (
	SyncFrequencyDaily    SyncFrequency = "daily"
	SyncFrequencyRealtime SyncFrequency = "realtime"
)

// ParseSyncFrequency validates a frequency value from the API layer.
func ParseSyncFrequency(raw string) (SyncFrequency, error) {
	switch SyncFrequency(raw) {
	case SyncFrequencyDaily, SyncFrequencyRealtime:
		return SyncFrequency(raw), nil
	}
	return "", fmt.Errorf("invalid sync frequency: %q", raw)
}
