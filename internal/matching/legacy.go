package matching

import (
	"context"
	"log"
	"sort"
)

// LegacyMatcher is the safety net behind the scoring engine: same-category,
// no distance weighting, fixed score. It never returns an error; anything
// that goes wrong degrades to an empty list so the caller still gets a
// (possibly empty) ranked slice.
type LegacyMatcher struct {
	cfg  Config
	repo Repository
}

func NewLegacyMatcher(cfg Config, repo Repository) *LegacyMatcher {
	return &LegacyMatcher{cfg: cfg, repo: repo}
}

// Match returns same-category complementary listings at the fixed legacy
// score, newest first.
func (m *LegacyMatcher) Match(ctx context.Context, tenantID, userID int64, limit int) []MatchResult {
	seekerListings, err := m.repo.GetOpenListings(ctx, tenantID, userID)
	if err != nil {
		log.Printf("matching: legacy matcher listing lookup failed for user %d: %v", userID, err)
		return []MatchResult{}
	}
	if len(seekerListings) == 0 {
		return []MatchResult{}
	}

	wantTypes := make(map[ListingType]bool)
	categories := make([]int64, 0, len(seekerListings))
	catSeen := make(map[int64]bool)
	for _, l := range seekerListings {
		wantTypes[l.Type.Opposite()] = true
		if !catSeen[l.CategoryID] {
			catSeen[l.CategoryID] = true
			categories = append(categories, l.CategoryID)
		}
	}
	types := make([]ListingType, 0, len(wantTypes))
	for t := range wantTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	candidates, err := m.repo.FindCandidateListings(ctx, tenantID, userID, types, categories, limit)
	if err != nil {
		log.Printf("matching: legacy matcher candidate lookup failed for user %d: %v", userID, err)
		return []MatchResult{}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	results := make([]MatchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, MatchResult{
			Listing:   c,
			Score:     m.cfg.LegacyScore,
			Reasons:   []string{"same category as your listing"},
			MatchType: MatchTypeLegacy,
		})
	}
	return results
}
