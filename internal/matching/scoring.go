package matching

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"
)

// ScoringEngine produces ranked offer/request suggestions for a seeker. It is
// the primary matcher; any error it returns makes the facade fall back to the
// legacy matcher, so it never needs to degrade internally beyond the neutral
// defaults for missing data.
type ScoringEngine struct {
	cfg  Config
	repo Repository
	now  func() time.Time
}

func NewScoringEngine(cfg Config, repo Repository) *ScoringEngine {
	return &ScoringEngine{cfg: cfg, repo: repo, now: time.Now}
}

// ScoreOptions is the per-call option bag. Nil overrides fall back to the
// resolved tenant/user preferences supplied by the facade.
type ScoreOptions struct {
	Limit          int
	MaxDistanceKm  *float64
	MinScore       *float64
	CategoryFilter []int64

	// CheckMutual enables the one-level reciprocity pass. The reverse pass
	// itself always runs with this off, which is what bounds the recursion.
	CheckMutual bool
}

// SuggestionsForUser scores the candidate pool of complementary listings for
// one user and returns the ranked results. Pure read: persistence of the
// results into match_cache is the facade's job.
func (e *ScoringEngine) SuggestionsForUser(ctx context.Context, tenantID, userID int64, opts ScoreOptions) ([]MatchResult, error) {
	seekerListings, err := e.repo.GetOpenListings(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("load seeker listings: %w", err)
	}
	if len(seekerListings) == 0 {
		// Nothing to match against; skip every downstream lookup.
		return nil, nil
	}

	seeker, err := e.repo.GetUserProfile(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("load seeker profile: %w", err)
	}

	seekerCats := make(map[int64]bool, len(seekerListings))
	wantTypes := make(map[ListingType]bool)
	for _, l := range seekerListings {
		seekerCats[l.CategoryID] = true
		wantTypes[l.Type.Opposite()] = true
	}
	types := make([]ListingType, 0, len(wantTypes))
	for t := range wantTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	candidates, err := e.repo.FindCandidateListings(ctx, tenantID, userID, types, opts.CategoryFilter, e.cfg.CandidatePoolLimit)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Learning signals are best-effort: a failure here degrades to neutral
	// scoring, it never aborts the pass.
	affinities, err := e.repo.GetCategoryAffinities(ctx, tenantID, userID)
	if err != nil {
		log.Printf("matching: affinity lookup failed for user %d: %v", userID, err)
		affinities = nil
	}
	distPref, err := e.repo.GetDistancePreference(ctx, tenantID, userID)
	if err != nil {
		log.Printf("matching: distance preference lookup failed for user %d: %v", userID, err)
		distPref = nil
	}

	ownerIDs := make([]int64, 0, len(candidates))
	seen := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c.OwnerID] {
			seen[c.OwnerID] = true
			ownerIDs = append(ownerIDs, c.OwnerID)
		}
	}
	owners, err := e.repo.GetUserProfiles(ctx, tenantID, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("load candidate owners: %w", err)
	}

	minScore := e.cfg.MinMatchScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	now := e.now()
	results := make([]MatchResult, 0, len(candidates))
	for _, cand := range candidates {
		owner := owners[cand.OwnerID]
		score, reasons, dist := e.scoreListing(seeker, seekerCats, cand, owner, affinities, distPref, now)

		if opts.MaxDistanceKm != nil && dist != nil && *dist > *opts.MaxDistanceKm {
			continue
		}
		if score < minScore {
			continue
		}

		matchType := MatchTypeStandard
		if score >= e.cfg.HotScoreThreshold && dist != nil && *dist <= e.cfg.HotMaxDistanceKm {
			matchType = MatchTypeHot
		}
		if opts.CheckMutual && score >= e.cfg.MutualScoreThreshold {
			mutual, err := e.isMutual(ctx, tenantID, seeker, seekerListings, cand, now)
			if err != nil {
				return nil, fmt.Errorf("mutual check: %w", err)
			}
			if mutual {
				matchType = MatchTypeMutual
			}
		}

		RecordMatchScore(score)
		results = append(results, MatchResult{
			Listing:    cand,
			Score:      score,
			Reasons:    reasons,
			DistanceKm: dist,
			MatchType:  matchType,
		})
	}

	// Score descending, then newest listing, then id for a stable order
	// across repeated calls and pages.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Listing.CreatedAt.Equal(results[j].Listing.CreatedAt) {
			return results[i].Listing.CreatedAt.After(results[j].Listing.CreatedAt)
		}
		return results[i].Listing.ID < results[j].Listing.ID
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// scoreListing combines category, geo, freshness and owner quality into the
// 0-100 base score, then adds the learned boost. Returns the score, the
// human-readable reasons, and the distance when both sides have coordinates.
func (e *ScoringEngine) scoreListing(seeker *UserProfile, seekerCats map[int64]bool, cand *Listing, owner *UserProfile, affinities map[int64]float64, distPref *DistancePreference, now time.Time) (float64, []string, *float64) {
	var score float64
	var reasons []string

	if seekerCats[cand.CategoryID] {
		score += e.cfg.CategoryPoints
		reasons = append(reasons, "matches one of your listings")
	}

	dist := candidateDistance(seeker, cand, owner)
	geo := GeoScore(dist, e.cfg.Geo)
	score += e.cfg.GeoPoints * geo
	if dist != nil && *dist <= e.cfg.HotMaxDistanceKm {
		reasons = append(reasons, fmt.Sprintf("%.1f km away", *dist))
	}

	fresh := FreshnessScore(cand.CreatedAt, now, e.cfg.Freshness)
	score += e.cfg.FreshnessPoints * fresh
	if fresh == 1.0 {
		reasons = append(reasons, "posted recently")
	}

	quality := ownerQuality(owner)
	score += e.cfg.QualityPoints * quality
	if quality >= 0.8 {
		reasons = append(reasons, "experienced, well-rated member")
	}

	affinityBoost, distanceBoost := e.learnedBoost(cand.CategoryID, dist, affinities, distPref)
	if affinityBoost > 0 {
		reasons = append(reasons, "in a category you engage with")
	}
	boost := clamp(affinityBoost+distanceBoost, -e.cfg.MaxTotalBoost, e.cfg.MaxTotalBoost)

	return clamp(score+boost, 0, 100), reasons, dist
}

// learnedBoost derives the personalization terms from the learning store.
// Affinity contributes (score-50)/10 clamped to ±MaxAffinityBoost; distance
// contributes a four-tier adjustment around the learned radius. Missing state
// on either side is neutral.
func (e *ScoringEngine) learnedBoost(categoryID int64, dist *float64, affinities map[int64]float64, distPref *DistancePreference) (float64, float64) {
	var affinityBoost float64
	if aff, ok := affinities[categoryID]; ok {
		affinityBoost = clamp((aff-50)/10, -e.cfg.MaxAffinityBoost, e.cfg.MaxAffinityBoost)
	}

	var distanceBoost float64
	if distPref != nil && distPref.LearnedMaxKm != nil && dist != nil {
		learned := *distPref.LearnedMaxKm
		switch {
		case *dist <= 0.5*learned:
			distanceBoost = e.cfg.MaxDistanceBoost
		case *dist <= learned:
			distanceBoost = 1
		case *dist <= 1.5*learned:
			distanceBoost = -1
		default:
			distanceBoost = -e.cfg.MaxDistanceBoost
		}
	}

	return affinityBoost, distanceBoost
}

// isMutual runs the one-level reverse pass: does one of the seeker's own
// listings score above the mutual threshold for the candidate's owner? The
// reverse pass uses neutral learning state and never recurses further.
func (e *ScoringEngine) isMutual(ctx context.Context, tenantID int64, seeker *UserProfile, seekerListings []*Listing, cand *Listing, now time.Time) (bool, error) {
	owner, err := e.repo.GetUserProfile(ctx, tenantID, cand.OwnerID)
	if err != nil {
		return false, err
	}
	ownerListings, err := e.repo.GetOpenListings(ctx, tenantID, cand.OwnerID)
	if err != nil {
		return false, err
	}
	if len(ownerListings) == 0 {
		return false, nil
	}

	ownerCats := make(map[int64]bool, len(ownerListings))
	ownerWants := make(map[ListingType]bool, len(ownerListings))
	for _, l := range ownerListings {
		ownerCats[l.CategoryID] = true
		ownerWants[l.Type.Opposite()] = true
	}

	for _, mine := range seekerListings {
		if !ownerWants[mine.Type] {
			continue
		}
		score, _, _ := e.scoreListing(owner, ownerCats, mine, seeker, nil, nil, now)
		if score >= e.cfg.MutualScoreThreshold {
			return true, nil
		}
	}
	return false, nil
}

// candidateDistance prefers the listing's own coordinates and falls back to
// the owner's. Nil when either side has no usable location.
func candidateDistance(seeker *UserProfile, cand *Listing, owner *UserProfile) *float64 {
	if seeker == nil || seeker.Latitude == nil || seeker.Longitude == nil {
		return nil
	}
	lat, lon := cand.Latitude, cand.Longitude
	if lat == nil || lon == nil {
		if owner == nil || owner.Latitude == nil || owner.Longitude == nil {
			return nil
		}
		lat, lon = owner.Latitude, owner.Longitude
	}
	d := DistanceKm(*seeker.Latitude, *seeker.Longitude, *lat, *lon)
	d = math.Round(d*10) / 10
	return &d
}

// ownerQuality folds the owner's reputation into 0..1: rating (neutral 0.5
// when unrated), transaction activity capped at 20, profile completeness.
func ownerQuality(owner *UserProfile) float64 {
	if owner == nil {
		return 0.5
	}
	rating := 0.5
	if owner.AverageRating != nil {
		rating = clamp(*owner.AverageRating/5, 0, 1)
	}
	activity := math.Min(1, float64(owner.TransactionCount)/20)
	completeness := clamp(owner.CompletionScore, 0, 1)
	return 0.5*rating + 0.3*activity + 0.2*completeness
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
