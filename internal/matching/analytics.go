package matching

import (
	"context"
	"log"
)

// FunnelCounts is the suggestion-to-transaction conversion funnel. Drop-off
// may skip stages, so no ordering between viewed/contacted is assumed; only
// completed ≤ matched holds by construction.
type FunnelCounts struct {
	Matched   int64 `json:"matched" db:"matched"`
	Viewed    int64 `json:"viewed" db:"viewed"`
	Contacted int64 `json:"contacted" db:"contacted"`
	Completed int64 `json:"completed" db:"completed"`
}

// ConversionRate is completed over matched, 0 when nothing matched yet.
func (f *FunnelCounts) ConversionRate() float64 {
	if f.Matched == 0 {
		return 0
	}
	return float64(f.Completed) / float64(f.Matched)
}

// CategoryConversion is one row of the top-converting-categories board.
type CategoryConversion struct {
	CategoryID  int64 `json:"category_id" db:"category_id"`
	Conversions int64 `json:"conversions" db:"conversions"`
}

// ScoreBucket / DistanceBand label the histogram buckets for dashboards.
type ScoreBucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

var scoreBucketLabels = [4]string{"0-40", "40-60", "60-80", "80-100"}
var distanceBandLabels = [5]string{"0-2km", "2-5km", "5-15km", "15-50km", "50km+"}

// AnalyticsSnapshot is the dashboard read model for one tenant.
type AnalyticsSnapshot struct {
	TenantID             int64                `json:"tenant_id"`
	ScoreDistribution    []ScoreBucket        `json:"score_distribution"`
	DistanceDistribution []ScoreBucket        `json:"distance_distribution"`
	Funnel               FunnelCounts         `json:"funnel"`
	ConversionRate       float64              `json:"conversion_rate"`
	AvgHoursToConversion float64              `json:"avg_hours_to_conversion"`
	TopCategories        []CategoryConversion `json:"top_categories"`
}

// Reporter aggregates the cache, history and preference tables for
// dashboards. Strictly read-only and fail-soft: every aggregate that errors
// degrades to its zero value so the reporting surface never takes down a
// request.
type Reporter struct {
	repo  Repository
	cache *SnapshotCache // nil when redis is not configured
}

func NewReporter(repo Repository, cache *SnapshotCache) *Reporter {
	return &Reporter{repo: repo, cache: cache}
}

func (r *Reporter) DashboardSummary(ctx context.Context, tenantID int64) *AnalyticsSnapshot {
	if cached, ok := r.cache.Get(ctx, tenantID); ok {
		return cached
	}

	snapshot := &AnalyticsSnapshot{
		TenantID:      tenantID,
		TopCategories: []CategoryConversion{},
	}

	scores, err := r.repo.ScoreDistribution(ctx, tenantID)
	if err != nil {
		log.Printf("matching: score distribution failed for tenant %d: %v", tenantID, err)
	}
	snapshot.ScoreDistribution = labelBuckets(scoreBucketLabels[:], scores[:])

	distances, err := r.repo.DistanceDistribution(ctx, tenantID)
	if err != nil {
		log.Printf("matching: distance distribution failed for tenant %d: %v", tenantID, err)
	}
	snapshot.DistanceDistribution = labelBuckets(distanceBandLabels[:], distances[:])

	if funnel, err := r.repo.FunnelCounts(ctx, tenantID); err != nil {
		log.Printf("matching: funnel counts failed for tenant %d: %v", tenantID, err)
	} else {
		snapshot.Funnel = *funnel
		snapshot.ConversionRate = funnel.ConversionRate()
	}

	if hours, err := r.repo.AvgHoursToConversion(ctx, tenantID); err != nil {
		log.Printf("matching: conversion time failed for tenant %d: %v", tenantID, err)
	} else {
		snapshot.AvgHoursToConversion = hours
	}

	if top, err := r.repo.TopConvertingCategories(ctx, tenantID, 10); err != nil {
		log.Printf("matching: top categories failed for tenant %d: %v", tenantID, err)
	} else if top != nil {
		snapshot.TopCategories = top
	}

	r.cache.Set(ctx, tenantID, snapshot)
	return snapshot
}

func labelBuckets(labels []string, counts []int64) []ScoreBucket {
	buckets := make([]ScoreBucket, len(labels))
	for i, label := range labels {
		buckets[i] = ScoreBucket{Label: label}
		if i < len(counts) {
			buckets[i].Count = counts[i]
		}
	}
	return buckets
}
