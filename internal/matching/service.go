package matching

import (
	"context"
	"errors"
	"log"
	"time"
)

var (
	ErrListingNotFound    = errors.New("listing not found")
	ErrInvalidAction      = errors.New("invalid interaction action")
	ErrConversionNotFound = errors.New("no prior interaction to convert")
	ErrInvalidMatchType   = errors.New("invalid match type")
)

// FindMatchesOptions is the caller-facing option bag for suggestion queries.
type FindMatchesOptions struct {
	Limit          int
	MaxDistanceKm  *float64
	MinScore       *float64
	CategoryFilter []int64
}

type Service interface {
	// Suggestions
	FindMatches(ctx context.Context, tenantID, userID int64, opts *FindMatchesOptions) ([]MatchResult, error)
	GetHotMatches(ctx context.Context, tenantID, userID int64, limit int) ([]MatchResult, error)
	GetMutualMatches(ctx context.Context, tenantID, userID int64, limit int) ([]MatchResult, error)
	GetMatchesByType(ctx context.Context, tenantID, userID int64, matchType string, limit int) ([]*MatchCacheEntry, error)

	// Funnel
	RecordInteraction(ctx context.Context, tenantID, userID int64, dto *RecordInteractionDTO) (*MatchHistoryEvent, error)
	MarkConversion(ctx context.Context, tenantID, userID, listingID int64, transactionID string) error

	// Preferences & learning
	GetPreferences(ctx context.Context, tenantID, userID int64) (*MatchPreferences, error)
	SavePreferences(ctx context.Context, tenantID, userID int64, dto *SavePreferencesDTO) (*MatchPreferences, error)
	ResetUserLearning(ctx context.Context, tenantID, userID int64) error

	// Analytics
	GetDashboardSummary(ctx context.Context, tenantID int64) (*AnalyticsSnapshot, error)

	// Scheduled sweep
	NotifyNewMatchesSweep(ctx context.Context) error
}

type service struct {
	cfg      Config
	repo     Repository
	engine   *ScoringEngine
	legacy   *LegacyMatcher
	reporter *Reporter
	hub      *Hub // nil when the push surface is disabled
}

func NewService(cfg Config, repo Repository, reporter *Reporter, hub *Hub) Service {
	return &service{
		cfg:      cfg,
		repo:     repo,
		engine:   NewScoringEngine(cfg, repo),
		legacy:   NewLegacyMatcher(cfg, repo),
		reporter: reporter,
		hub:      hub,
	}
}

func (s *service) FindMatches(ctx context.Context, tenantID, userID int64, opts *FindMatchesOptions) ([]MatchResult, error) {
	return s.findMatches(ctx, tenantID, userID, opts, false)
}

func (s *service) GetMutualMatches(ctx context.Context, tenantID, userID int64, limit int) ([]MatchResult, error) {
	results, err := s.findMatches(ctx, tenantID, userID, &FindMatchesOptions{Limit: s.cfg.CandidatePoolLimit}, true)
	if err != nil {
		return nil, err
	}
	return filterByType(results, MatchTypeMutual, limit), nil
}

func (s *service) GetHotMatches(ctx context.Context, tenantID, userID int64, limit int) ([]MatchResult, error) {
	results, err := s.findMatches(ctx, tenantID, userID, &FindMatchesOptions{Limit: s.cfg.CandidatePoolLimit}, false)
	if err != nil {
		return nil, err
	}
	return filterByType(results, MatchTypeHot, limit), nil
}

func (s *service) findMatches(ctx context.Context, tenantID, userID int64, opts *FindMatchesOptions, checkMutual bool) ([]MatchResult, error) {
	if opts == nil {
		opts = &FindMatchesOptions{}
	}

	prefs, err := s.resolvePreferences(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	scoreOpts := ScoreOptions{
		Limit:          opts.Limit,
		MaxDistanceKm:  opts.MaxDistanceKm,
		MinScore:       opts.MinScore,
		CategoryFilter: opts.CategoryFilter,
		CheckMutual:    checkMutual,
	}
	if scoreOpts.MaxDistanceKm == nil {
		scoreOpts.MaxDistanceKm = &prefs.MaxDistanceKm
	}
	if scoreOpts.MinScore == nil {
		scoreOpts.MinScore = &prefs.MinMatchScore
	}
	if len(scoreOpts.CategoryFilter) == 0 && len(prefs.CategoryFilter) > 0 {
		scoreOpts.CategoryFilter = prefs.CategoryFilter
	}

	started := time.Now()
	results, err := s.engine.SuggestionsForUser(ctx, tenantID, userID, scoreOpts)
	ObserveScoringDuration(time.Since(started))
	if err != nil {
		// Explicit fallback strategy: the primary engine failed, the caller
		// still gets a ranked (possibly empty) list.
		log.Printf("matching: scoring failed for tenant %d user %d, using legacy matcher: %v", tenantID, userID, err)
		RecordFallback()
		results = s.legacy.Match(ctx, tenantID, userID, limitOrDefault(opts.Limit, s.cfg.DefaultLimit))
	}

	s.persistResults(ctx, tenantID, userID, results, prefs)
	RecordSuggestions(len(results))
	return results, nil
}

// persistResults writes the scored batch through to match_cache and pushes
// hot matches to the hub. Both are best-effort: a write failure degrades to a
// log line, it never costs the caller their results.
func (s *service) persistResults(ctx context.Context, tenantID, userID int64, results []MatchResult, prefs *MatchPreferences) {
	for i := range results {
		r := &results[i]
		entry := &MatchCacheEntry{
			TenantID:   tenantID,
			UserID:     userID,
			ListingID:  r.Listing.ID,
			MatchScore: r.Score,
			MatchType:  r.MatchType,
			DistanceKm: r.DistanceKm,
		}
		if err := s.repo.UpsertCacheEntry(ctx, entry); err != nil {
			log.Printf("matching: cache write failed for (%d,%d,%d): %v", tenantID, userID, r.Listing.ID, err)
			continue
		}
		if r.MatchType == MatchTypeHot && entry.Status == StatusNew && s.hub != nil && prefs.NotifyHotMatches {
			s.hub.NotifyHotMatch(userID, *r)
		}
	}
}

func (s *service) GetMatchesByType(ctx context.Context, tenantID, userID int64, matchType string, limit int) ([]*MatchCacheEntry, error) {
	switch matchType {
	case "", MatchTypeStandard, MatchTypeHot, MatchTypeMutual, MatchTypeLegacy:
	default:
		return nil, ErrInvalidMatchType
	}
	return s.repo.GetCachedMatches(ctx, tenantID, userID, matchType, limitOrDefault(limit, s.cfg.DefaultLimit))
}

func (s *service) RecordInteraction(ctx context.Context, tenantID, userID int64, dto *RecordInteractionDTO) (*MatchHistoryEvent, error) {
	action := Action(dto.Action)
	if !ValidAction(action) {
		return nil, ErrInvalidAction
	}

	categoryID := dto.CategoryID
	distanceKm := dto.DistanceKm
	if categoryID == 0 || distanceKm == nil {
		listing, err := s.repo.GetListing(ctx, tenantID, dto.ListingID)
		if err != nil {
			return nil, err
		}
		if categoryID == 0 {
			categoryID = listing.CategoryID
		}
	}

	event := &MatchHistoryEvent{
		TenantID:   tenantID,
		UserID:     userID,
		ListingID:  dto.ListingID,
		CategoryID: categoryID,
		Action:     action,
		DistanceKm: distanceKm,
	}

	// Cache status, history append and learning update move together: if any
	// step fails the transaction rolls back and the three stores stay
	// consistent.
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.AdvanceCacheStatus(ctx, tenantID, userID, dto.ListingID, actionStatus[action], distanceKm); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, event); err != nil {
			return err
		}
		return NewPreferenceStore(tx).Apply(ctx, tenantID, userID, categoryID, action, distanceKm)
	})
	if err != nil {
		return nil, err
	}

	RecordInteractionMetric(string(action))
	return event, nil
}

func (s *service) MarkConversion(ctx context.Context, tenantID, userID, listingID int64, transactionID string) error {
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.AttachConversion(ctx, tenantID, userID, listingID, transactionID); err != nil {
			return err
		}
		return tx.AdvanceCacheStatus(ctx, tenantID, userID, listingID, StatusCompleted, nil)
	})
	if err != nil {
		return err
	}
	RecordConversion()
	return nil
}

func (s *service) GetPreferences(ctx context.Context, tenantID, userID int64) (*MatchPreferences, error) {
	return s.resolvePreferences(ctx, tenantID, userID)
}

func (s *service) SavePreferences(ctx context.Context, tenantID, userID int64, dto *SavePreferencesDTO) (*MatchPreferences, error) {
	prefs := &MatchPreferences{
		TenantID:         tenantID,
		UserID:           userID,
		MaxDistanceKm:    dto.MaxDistanceKm,
		MinMatchScore:    dto.MinMatchScore,
		NotifyHotMatches: dto.NotifyHotMatches,
		NotifyNewMatches: dto.NotifyNewMatches,
		CategoryFilter:   dto.CategoryFilter,
	}
	if err := s.repo.SavePreferences(ctx, prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *service) ResetUserLearning(ctx context.Context, tenantID, userID int64) error {
	// Atomic with respect to concurrent scoring reads: a reader sees either
	// the old rows or none at all.
	return s.repo.WithTx(ctx, func(tx Repository) error {
		return NewPreferenceStore(tx).Reset(ctx, tenantID, userID)
	})
}

func (s *service) GetDashboardSummary(ctx context.Context, tenantID int64) (*AnalyticsSnapshot, error) {
	return s.reporter.DashboardSummary(ctx, tenantID), nil
}

// NotifyNewMatchesSweep is the periodic job: re-run suggestions for every
// opted-in user so fresh hot matches get pushed. Just repeated synchronous
// calls; per-user failures are logged and skipped.
func (s *service) NotifyNewMatchesSweep(ctx context.Context) error {
	users, err := s.repo.ListNotifiableUsers(ctx, s.cfg.CandidatePoolLimit)
	if err != nil {
		return err
	}
	for _, u := range users {
		if _, err := s.FindMatches(ctx, u.TenantID, u.UserID, nil); err != nil {
			log.Printf("matching: sweep failed for tenant %d user %d: %v", u.TenantID, u.UserID, err)
		}
	}
	return nil
}

func (s *service) resolvePreferences(ctx context.Context, tenantID, userID int64) (*MatchPreferences, error) {
	prefs, err := s.repo.GetPreferences(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		prefs = DefaultPreferences(s.cfg, tenantID, userID)
	}
	return prefs, nil
}

func filterByType(results []MatchResult, matchType string, limit int) []MatchResult {
	filtered := make([]MatchResult, 0, limit)
	for _, r := range results {
		if r.MatchType != matchType {
			continue
		}
		filtered = append(filtered, r)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered
}

func limitOrDefault(limit, fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}
