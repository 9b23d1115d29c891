// Package sync implements the integration sync workflow: triggering attempts,
// reconciling fetched activities against stored rows, and scheduling auto-sync.
package sync

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/MartinT518/MomentumTracker-sub003/internal/domain"
	"github.com/MartinT518/MomentumTracker-sub003/internal/platform"
)

// distanceTolerance is the relative distance delta accepted by the heuristic
// match when a platform provides no stable external id.
const distanceTolerance = 0.02

// Reconciler maps externally fetched workout records onto stored activity
// rows, deciding create vs update vs skip per record.
type Reconciler struct {
	activities domain.ActivityRepository
}

// NewReconciler constructs a Reconciler.
func NewReconciler(activities domain.ActivityRepository) *Reconciler {
	return &Reconciler{activities: activities}
}

// Reconcile applies the external activity list for one (user, platform) pair.
// The policy is idempotent: a second run over the same list yields zero
// creates and zero updates.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID, userID string, p domain.Platform, externals []platform.ExternalActivity) (domain.SyncResult, error) {
	result := domain.SyncResult{ItemsSynced: len(externals)}

	for _, external := range externals {
		match, err := r.findMatch(ctx, tenantID, userID, p, external)
		if err != nil {
			return result, err
		}

		switch {
		case match == nil:
			if err := r.create(ctx, tenantID, userID, p, external); err != nil {
				return result, err
			}
			result.Created++
			reconcileOutcomeCounter.WithLabelValues(string(p), "created").Inc()
		case externalNewer(external, match):
			if err := r.update(ctx, match, external); err != nil {
				return result, err
			}
			result.Updated++
			reconcileOutcomeCounter.WithLabelValues(string(p), "updated").Inc()
		default:
			// Skip preserves user-edited fields on up-to-date rows.
			result.Skipped++
			reconcileOutcomeCounter.WithLabelValues(string(p), "skipped").Inc()
		}
	}

	return result, nil
}

func (r *Reconciler) findMatch(ctx context.Context, tenantID, userID string, p domain.Platform, external platform.ExternalActivity) (*domain.Activity, error) {
	if external.ExternalID != "" {
		return r.activities.FindByExternalID(ctx, tenantID, userID, string(p), external.ExternalID)
	}

	day := external.StartedAt.UTC().Truncate(24 * time.Hour)
	candidates, err := r.activities.FindByDay(ctx, tenantID, userID, external.ActivityType, day)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if distanceWithinTolerance(external.DistanceMeters, candidates[i].DistanceMeters) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (r *Reconciler) create(ctx context.Context, tenantID, userID string, p domain.Platform, external platform.ExternalActivity) error {
	now := time.Now().UTC()
	modified := external.ModifiedAt
	activity := domain.Activity{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		UserID:             userID,
		ActivityType:       external.ActivityType,
		StartedAt:          external.StartedAt.UTC(),
		DurationMin:        external.DurationMin,
		DistanceMeters:     external.DistanceMeters,
		Source:             string(p),
		ExternalID:         external.ExternalID,
		ExternalModifiedAt: &modified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return r.activities.Create(ctx, activity)
}

func (r *Reconciler) update(ctx context.Context, match *domain.Activity, external platform.ExternalActivity) error {
	modified := external.ModifiedAt
	updated := *match
	updated.ActivityType = external.ActivityType
	updated.StartedAt = external.StartedAt.UTC()
	updated.DurationMin = external.DurationMin
	updated.DistanceMeters = external.DistanceMeters
	updated.ExternalModifiedAt = &modified
	updated.UpdatedAt = time.Now().UTC()
	return r.activities.Update(ctx, updated)
}

// externalNewer reports whether the external record is strictly newer than
// the stored row per its own last-modified timestamp. A stored row without an
// external timestamp is a manually entered activity; strictly-newer cannot be
// established against it, so the user's edits stand.
func externalNewer(external platform.ExternalActivity, match *domain.Activity) bool {
	if external.ModifiedAt.IsZero() || match.ExternalModifiedAt == nil {
		return false
	}
	return external.ModifiedAt.After(*match.ExternalModifiedAt)
}

func distanceWithinTolerance(external, stored float64) bool {
	if external == 0 {
		return stored == 0
	}
	return math.Abs(external-stored) <= distanceTolerance*external
}
