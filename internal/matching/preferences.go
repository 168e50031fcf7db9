package matching

import (
	"context"
	"fmt"
)

// Distance buckets: 0-2, 2-5, 5-15, 15-50, 50+ km.
var (
	bucketUpperKm   = [5]float64{2, 5, 15, 50, 0} // last bucket is open-ended
	bucketMidpoints = [5]float64{1, 3.5, 10, 32.5, 75}
	bucketColumns   = [5]string{"bucket_0_2km", "bucket_2_5km", "bucket_5_15km", "bucket_15_50km", "bucket_50km_plus"}
)

// learnedMaxMinInteractions is the bucketed-interaction count below which the
// learned radius stays null and scoring falls back to neutral.
const learnedMaxMinInteractions = 5

// bucketIndex returns the distance bucket for an interaction.
func bucketIndex(distanceKm float64) int {
	for i := 0; i < len(bucketUpperKm)-1; i++ {
		if distanceKm <= bucketUpperKm[i] {
			return i
		}
	}
	return len(bucketUpperKm) - 1
}

// learnedMaxFromBuckets recomputes the learned radius: 1.5x the
// interaction-weighted average of the bucket midpoints. Nil below the
// minimum interaction count.
func learnedMaxFromBuckets(buckets [5]int) *float64 {
	total := 0
	weighted := 0.0
	for i, n := range buckets {
		total += n
		weighted += float64(n) * bucketMidpoints[i]
	}
	if total < learnedMaxMinInteractions {
		return nil
	}
	learned := 1.5 * weighted / float64(total)
	return &learned
}

// affinitySeed is the initial affinity for a category's first interaction.
func affinitySeed(weight float64) float64 {
	return clamp(50+weight*10, 0, 100)
}

// affinityDelta is the per-interaction adjustment applied to an existing row.
func affinityDelta(weight float64) float64 {
	return weight * 2
}

// PreferenceStore converts raw interaction signals into the bounded
// per-user personalization state (category affinity and distance buckets).
// The repository it wraps may be transaction-scoped, which is how the facade
// folds the learning update into the recordInteraction unit of work.
type PreferenceStore struct {
	repo Repository
}

func NewPreferenceStore(repo Repository) *PreferenceStore {
	return &PreferenceStore{repo: repo}
}

// Apply records one interaction: upserts the category affinity row and, for
// positive-intent actions with a known distance, bumps the distance bucket
// and recomputes the learned radius.
func (p *PreferenceStore) Apply(ctx context.Context, tenantID, userID, categoryID int64, action Action, distanceKm *float64) error {
	if !ValidAction(action) {
		return ErrInvalidAction
	}

	if err := p.repo.UpsertCategoryAffinity(ctx, tenantID, userID, categoryID, action); err != nil {
		return fmt.Errorf("affinity upsert: %w", err)
	}

	if !PositiveAction(action) || distanceKm == nil {
		return nil
	}

	if err := p.repo.IncrementDistanceBucket(ctx, tenantID, userID, bucketIndex(*distanceKm)); err != nil {
		return fmt.Errorf("distance bucket increment: %w", err)
	}

	// Cheap inline aggregate; reads the row just written within the same
	// transaction when the repo is tx-scoped.
	pref, err := p.repo.GetDistancePreference(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("distance preference read: %w", err)
	}
	if pref == nil {
		return nil
	}
	learned := learnedMaxFromBuckets(pref.Buckets())
	if err := p.repo.SetLearnedMaxDistance(ctx, tenantID, userID, learned); err != nil {
		return fmt.Errorf("learned distance update: %w", err)
	}
	return nil
}

// Reset hard-deletes a user's affinity and distance rows in one shot
// (privacy and test hygiene).
func (p *PreferenceStore) Reset(ctx context.Context, tenantID, userID int64) error {
	return p.repo.ResetUserLearning(ctx, tenantID, userID)
}
