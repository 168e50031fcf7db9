package matching

import (
	"context"
	"testing"
)

func TestDashboardSummaryAggregates(t *testing.T) {
	repo := newFakeRepository()
	repo.scoreDist = [4]int64{1, 2, 3, 4}
	repo.distanceDist = [5]int64{5, 4, 3, 2, 1}
	repo.funnel = FunnelCounts{Matched: 100, Viewed: 50, Contacted: 20, Completed: 10}
	repo.avgHours = 36.5
	repo.topCats = []CategoryConversion{{CategoryID: 7, Conversions: 9}}

	reporter := NewReporter(repo, nil)
	snapshot := reporter.DashboardSummary(context.Background(), 1)

	if snapshot.TenantID != 1 {
		t.Errorf("tenant = %d, want 1", snapshot.TenantID)
	}
	if len(snapshot.ScoreDistribution) != 4 {
		t.Fatalf("score buckets = %d, want 4", len(snapshot.ScoreDistribution))
	}
	if snapshot.ScoreDistribution[3].Label != "80-100" || snapshot.ScoreDistribution[3].Count != 4 {
		t.Errorf("top score bucket = %+v", snapshot.ScoreDistribution[3])
	}
	if len(snapshot.DistanceDistribution) != 5 {
		t.Fatalf("distance bands = %d, want 5", len(snapshot.DistanceDistribution))
	}
	if snapshot.ConversionRate != 0.1 {
		t.Errorf("conversion rate = %v, want 0.1", snapshot.ConversionRate)
	}
	if snapshot.AvgHoursToConversion != 36.5 {
		t.Errorf("avg hours = %v, want 36.5", snapshot.AvgHoursToConversion)
	}
	if len(snapshot.TopCategories) != 1 || snapshot.TopCategories[0].CategoryID != 7 {
		t.Errorf("top categories = %+v", snapshot.TopCategories)
	}
}

func TestDashboardSummaryDegradesToZeroes(t *testing.T) {
	repo := newFakeRepository()
	repo.errAnalytics = true

	reporter := NewReporter(repo, nil)
	snapshot := reporter.DashboardSummary(context.Background(), 1)

	if snapshot == nil {
		t.Fatal("snapshot must never be nil")
	}
	if len(snapshot.ScoreDistribution) != 4 || len(snapshot.DistanceDistribution) != 5 {
		t.Errorf("buckets missing on degraded snapshot: %+v", snapshot)
	}
	for _, b := range snapshot.ScoreDistribution {
		if b.Count != 0 {
			t.Errorf("degraded bucket %s has count %d", b.Label, b.Count)
		}
	}
	if snapshot.Funnel.Matched != 0 || snapshot.ConversionRate != 0 {
		t.Errorf("degraded funnel not zeroed: %+v", snapshot.Funnel)
	}
	if snapshot.TopCategories == nil {
		t.Error("top categories should be an empty slice, not nil")
	}
}

func TestConversionRate(t *testing.T) {
	tests := []struct {
		funnel FunnelCounts
		want   float64
	}{
		{FunnelCounts{}, 0},
		{FunnelCounts{Matched: 10, Completed: 5}, 0.5},
		{FunnelCounts{Matched: 3, Completed: 0}, 0},
	}
	for _, tt := range tests {
		if got := tt.funnel.ConversionRate(); got != tt.want {
			t.Errorf("ConversionRate(%+v) = %v, want %v", tt.funnel, got, tt.want)
		}
	}
}
