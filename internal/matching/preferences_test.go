package matching

import (
	"context"
	"math"
	"testing"
)

func TestBucketIndex(t *testing.T) {
	tests := []struct {
		distance float64
		want     int
	}{
		{0, 0},
		{1.9, 0},
		{2, 0},
		{2.1, 1},
		{5, 1},
		{10, 2},
		{15, 2},
		{32, 3},
		{50, 3},
		{50.1, 4},
		{300, 4},
	}

	for _, tt := range tests {
		if got := bucketIndex(tt.distance); got != tt.want {
			t.Errorf("bucketIndex(%v) = %d, want %d", tt.distance, got, tt.want)
		}
	}
}

func TestLearnedMaxFromBuckets(t *testing.T) {
	tests := []struct {
		name    string
		buckets [5]int
		want    *float64
	}{
		{"no interactions", [5]int{}, nil},
		{"below minimum", [5]int{2, 2, 0, 0, 0}, nil},
		{"five in one bucket", [5]int{0, 5, 0, 0, 0}, ptrFloat(5.25)},
		{"mixed buckets", [5]int{5, 0, 5, 0, 0}, ptrFloat(8.25)},
		{"far traveler", [5]int{0, 0, 0, 0, 10}, ptrFloat(112.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := learnedMaxFromBuckets(tt.buckets)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("learnedMaxFromBuckets(%v) = %v, want %v", tt.buckets, got, tt.want)
			}
			if got != nil && math.Abs(*got-*tt.want) > 1e-9 {
				t.Errorf("learnedMaxFromBuckets(%v) = %v, want %v", tt.buckets, *got, *tt.want)
			}
		})
	}
}

func TestAffinitySeedAndDelta(t *testing.T) {
	if got := affinitySeed(1.0); got != 60 {
		t.Errorf("affinitySeed(completed) = %v, want 60", got)
	}
	if got := affinitySeed(-1.0); got != 40 {
		t.Errorf("affinitySeed(reported) = %v, want 40", got)
	}
	if got := affinityDelta(0.1); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("affinityDelta(viewed) = %v, want 0.2", got)
	}
	if got := affinityDelta(-0.5); math.Abs(got+1.0) > 1e-9 {
		t.Errorf("affinityDelta(dismissed) = %v, want -1.0", got)
	}
}

func TestPreferenceStoreApplySeedsAffinity(t *testing.T) {
	repo := newFakeRepository()
	store := NewPreferenceStore(repo)

	if err := store.Apply(context.Background(), 1, 10, 7, ActionViewed, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	row := repo.affinities[7]
	if row == nil {
		t.Fatal("affinity row not created")
	}
	if row.AffinityScore != 51 {
		t.Errorf("seed affinity = %v, want 51", row.AffinityScore)
	}
	if row.ViewCount != 1 {
		t.Errorf("view count = %d, want 1", row.ViewCount)
	}
	if repo.distPref != nil {
		t.Error("nil distance should not touch distance buckets")
	}
}

func TestPreferenceStoreApplyNegativeSkipsDistance(t *testing.T) {
	repo := newFakeRepository()
	store := NewPreferenceStore(repo)

	if err := store.Apply(context.Background(), 1, 10, 7, ActionDismissed, ptrFloat(3)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if repo.distPref != nil {
		t.Error("negative action must not move distance learning")
	}
	if row := repo.affinities[7]; row == nil || row.DismissCount != 1 {
		t.Error("dismissal should still adjust the affinity row")
	}
}

func TestPreferenceStoreLearnedMaxAppearsAtFifthInteraction(t *testing.T) {
	repo := newFakeRepository()
	store := NewPreferenceStore(repo)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Apply(ctx, 1, 10, 7, ActionViewed, ptrFloat(3)); err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
	}
	if repo.distPref.LearnedMaxKm != nil {
		t.Fatalf("learned radius set after 4 interactions: %v", *repo.distPref.LearnedMaxKm)
	}

	if err := store.Apply(ctx, 1, 10, 7, ActionViewed, ptrFloat(3)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if repo.distPref.LearnedMaxKm == nil {
		t.Fatal("learned radius still nil after 5 interactions")
	}
	// Five interactions in the 2-5km bucket: 1.5 * 3.5 = 5.25.
	if math.Abs(*repo.distPref.LearnedMaxKm-5.25) > 1e-9 {
		t.Errorf("learned radius = %v, want 5.25", *repo.distPref.LearnedMaxKm)
	}
}

func TestPreferenceStoreRejectsUnknownAction(t *testing.T) {
	store := NewPreferenceStore(newFakeRepository())
	if err := store.Apply(context.Background(), 1, 10, 7, Action("liked"), nil); err != ErrInvalidAction {
		t.Errorf("Apply(unknown) = %v, want ErrInvalidAction", err)
	}
}

func TestPreferenceStoreAffinityStaysBounded(t *testing.T) {
	repo := newFakeRepository()
	store := NewPreferenceStore(repo)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := store.Apply(ctx, 1, 10, 7, ActionCompleted, nil); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if got := repo.affinities[7].AffinityScore; got != 100 {
		t.Errorf("affinity exceeded bound: %v", got)
	}

	for i := 0; i < 200; i++ {
		if err := store.Apply(ctx, 1, 10, 7, ActionReported, nil); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if got := repo.affinities[7].AffinityScore; got != 0 {
		t.Errorf("affinity fell below bound: %v", got)
	}
}
