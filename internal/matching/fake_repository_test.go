package matching

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// fakeRepository is an in-memory Repository for engine and facade tests.
// Tenant scoping is honored on reads; tests use a single tenant unless they
// exercise isolation explicitly.
type fakeRepository struct {
	listings   []*Listing
	profiles   map[int64]*UserProfile
	affinities map[int64]*CategoryAffinity // keyed by category, single test user
	distPref   *DistancePreference
	prefs      *MatchPreferences
	cache      map[int64]*MatchCacheEntry // keyed by listing id
	history    []*MatchHistoryEvent
	notifiable []NotifiableUser

	scoreDist    [4]int64
	distanceDist [5]int64
	funnel       FunnelCounts
	avgHours     float64
	topCats      []CategoryConversion

	errOpenListings bool
	errCandidates   bool
	errProfiles     bool
	errAffinities   bool
	errAnalytics    bool

	candidateCalls int
	nextHistoryID  int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		profiles:   make(map[int64]*UserProfile),
		affinities: make(map[int64]*CategoryAffinity),
		cache:      make(map[int64]*MatchCacheEntry),
	}
}

var errFake = errors.New("fake repository failure")

func (f *fakeRepository) GetOpenListings(ctx context.Context, tenantID, ownerID int64) ([]*Listing, error) {
	if f.errOpenListings {
		return nil, errFake
	}
	var out []*Listing
	for _, l := range f.listings {
		if l.TenantID == tenantID && l.OwnerID == ownerID && l.Status == "open" {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepository) GetListing(ctx context.Context, tenantID, listingID int64) (*Listing, error) {
	for _, l := range f.listings {
		if l.TenantID == tenantID && l.ID == listingID {
			return l, nil
		}
	}
	return nil, ErrListingNotFound
}

func (f *fakeRepository) FindCandidateListings(ctx context.Context, tenantID, excludeOwnerID int64, types []ListingType, categoryIDs []int64, limit int) ([]*Listing, error) {
	f.candidateCalls++
	if f.errCandidates {
		return nil, errFake
	}
	wantType := make(map[ListingType]bool, len(types))
	for _, t := range types {
		wantType[t] = true
	}
	wantCat := make(map[int64]bool, len(categoryIDs))
	for _, c := range categoryIDs {
		wantCat[c] = true
	}

	var out []*Listing
	for _, l := range f.listings {
		if l.TenantID != tenantID || l.OwnerID == excludeOwnerID || l.Status != "open" {
			continue
		}
		if !wantType[l.Type] {
			continue
		}
		if len(categoryIDs) > 0 && !wantCat[l.CategoryID] {
			continue
		}
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepository) GetUserProfile(ctx context.Context, tenantID, userID int64) (*UserProfile, error) {
	return f.profiles[userID], nil
}

func (f *fakeRepository) GetUserProfiles(ctx context.Context, tenantID int64, userIDs []int64) (map[int64]*UserProfile, error) {
	if f.errProfiles {
		return nil, errFake
	}
	out := make(map[int64]*UserProfile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeRepository) UpsertCacheEntry(ctx context.Context, e *MatchCacheEntry) error {
	if existing, ok := f.cache[e.ListingID]; ok {
		existing.MatchScore = e.MatchScore
		existing.MatchType = e.MatchType
		existing.DistanceKm = e.DistanceKm
		existing.UpdatedAt = time.Now()
		*e = *existing
		return nil
	}
	e.ID = int64(len(f.cache) + 1)
	e.Status = StatusNew
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	stored := *e
	f.cache[e.ListingID] = &stored
	return nil
}

func (f *fakeRepository) AdvanceCacheStatus(ctx context.Context, tenantID, userID, listingID int64, status MatchStatus, distanceKm *float64) error {
	entry, ok := f.cache[listingID]
	if !ok {
		entry = &MatchCacheEntry{
			ID:         int64(len(f.cache) + 1),
			TenantID:   tenantID,
			UserID:     userID,
			ListingID:  listingID,
			MatchType:  MatchTypeStandard,
			DistanceKm: distanceKm,
			Status:     status,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		f.cache[listingID] = entry
		return nil
	}
	if StatusAdvances(entry.Status, status) {
		entry.Status = status
		entry.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeRepository) GetCachedMatches(ctx context.Context, tenantID, userID int64, matchType string, limit int) ([]*MatchCacheEntry, error) {
	var out []*MatchCacheEntry
	for _, e := range f.cache {
		if e.TenantID != tenantID || e.UserID != userID || e.Status == StatusDismissed {
			continue
		}
		if matchType != "" && e.MatchType != matchType {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepository) AppendHistory(ctx context.Context, ev *MatchHistoryEvent) error {
	f.nextHistoryID++
	ev.ID = f.nextHistoryID
	if ev.EventRef == "" {
		ev.EventRef = fmt.Sprintf("event-%d", ev.ID)
	}
	ev.CreatedAt = time.Now()
	stored := *ev
	f.history = append(f.history, &stored)
	return nil
}

func (f *fakeRepository) AttachConversion(ctx context.Context, tenantID, userID, listingID int64, transactionID string) error {
	for i := len(f.history) - 1; i >= 0; i-- {
		ev := f.history[i]
		if ev.TenantID != tenantID || ev.UserID != userID || ev.ListingID != listingID {
			continue
		}
		if ev.ResultedInTransaction {
			continue
		}
		switch ev.Action {
		case ActionViewed, ActionSaved, ActionContacted:
		default:
			continue
		}
		now := time.Now()
		ev.Action = ActionCompleted
		ev.ResultedInTransaction = true
		ev.TransactionID = &transactionID
		ev.ConversionTime = &now
		return nil
	}
	return ErrConversionNotFound
}

func (f *fakeRepository) UpsertCategoryAffinity(ctx context.Context, tenantID, userID, categoryID int64, action Action) error {
	column, ok := actionCounterColumn[action]
	if !ok {
		return ErrInvalidAction
	}
	weight := ActionWeight(action)

	row, ok := f.affinities[categoryID]
	if !ok {
		row = &CategoryAffinity{
			TenantID:      tenantID,
			UserID:        userID,
			CategoryID:    categoryID,
			AffinityScore: affinitySeed(weight),
		}
		f.affinities[categoryID] = row
	} else {
		row.AffinityScore = clamp(row.AffinityScore+affinityDelta(weight), 0, 100)
	}

	switch column {
	case "view_count":
		row.ViewCount++
	case "save_count":
		row.SaveCount++
	case "contact_count":
		row.ContactCount++
	case "transaction_count":
		row.TransactionCount++
	case "dismiss_count":
		row.DismissCount++
	}
	row.LastInteraction = time.Now()
	return nil
}

func (f *fakeRepository) GetCategoryAffinities(ctx context.Context, tenantID, userID int64) (map[int64]float64, error) {
	if f.errAffinities {
		return nil, errFake
	}
	out := make(map[int64]float64, len(f.affinities))
	for cat, row := range f.affinities {
		out[cat] = row.AffinityScore
	}
	return out, nil
}

func (f *fakeRepository) IncrementDistanceBucket(ctx context.Context, tenantID, userID int64, bucket int) error {
	if bucket < 0 || bucket >= len(bucketColumns) {
		return fmt.Errorf("distance bucket %d out of range", bucket)
	}
	if f.distPref == nil {
		f.distPref = &DistancePreference{TenantID: tenantID, UserID: userID}
	}
	switch bucket {
	case 0:
		f.distPref.Bucket0To2++
	case 1:
		f.distPref.Bucket2To5++
	case 2:
		f.distPref.Bucket5To15++
	case 3:
		f.distPref.Bucket15To50++
	case 4:
		f.distPref.Bucket50Plus++
	}
	return nil
}

func (f *fakeRepository) GetDistancePreference(ctx context.Context, tenantID, userID int64) (*DistancePreference, error) {
	if f.distPref == nil {
		return nil, nil
	}
	copied := *f.distPref
	return &copied, nil
}

func (f *fakeRepository) SetLearnedMaxDistance(ctx context.Context, tenantID, userID int64, learnedKm *float64) error {
	if f.distPref == nil {
		return nil
	}
	f.distPref.LearnedMaxKm = learnedKm
	return nil
}

func (f *fakeRepository) ResetUserLearning(ctx context.Context, tenantID, userID int64) error {
	f.affinities = make(map[int64]*CategoryAffinity)
	f.distPref = nil
	return nil
}

func (f *fakeRepository) GetPreferences(ctx context.Context, tenantID, userID int64) (*MatchPreferences, error) {
	return f.prefs, nil
}

func (f *fakeRepository) SavePreferences(ctx context.Context, p *MatchPreferences) error {
	p.UpdatedAt = time.Now()
	stored := *p
	f.prefs = &stored
	return nil
}

func (f *fakeRepository) ScoreDistribution(ctx context.Context, tenantID int64) ([4]int64, error) {
	if f.errAnalytics {
		return [4]int64{}, errFake
	}
	return f.scoreDist, nil
}

func (f *fakeRepository) DistanceDistribution(ctx context.Context, tenantID int64) ([5]int64, error) {
	if f.errAnalytics {
		return [5]int64{}, errFake
	}
	return f.distanceDist, nil
}

func (f *fakeRepository) FunnelCounts(ctx context.Context, tenantID int64) (*FunnelCounts, error) {
	if f.errAnalytics {
		return nil, errFake
	}
	funnel := f.funnel
	return &funnel, nil
}

func (f *fakeRepository) AvgHoursToConversion(ctx context.Context, tenantID int64) (float64, error) {
	if f.errAnalytics {
		return 0, errFake
	}
	return f.avgHours, nil
}

func (f *fakeRepository) TopConvertingCategories(ctx context.Context, tenantID int64, limit int) ([]CategoryConversion, error) {
	if f.errAnalytics {
		return nil, errFake
	}
	return f.topCats, nil
}

func (f *fakeRepository) ListNotifiableUsers(ctx context.Context, limit int) ([]NotifiableUser, error) {
	return f.notifiable, nil
}

func (f *fakeRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	return fn(f)
}

// Test fixture helpers

func ptrFloat(v float64) *float64 { return &v }

func testListing(id, ownerID, categoryID int64, t ListingType, lat, lon float64, age time.Duration) *Listing {
	return &Listing{
		ID:         id,
		TenantID:   1,
		OwnerID:    ownerID,
		Type:       t,
		CategoryID: categoryID,
		Title:      fmt.Sprintf("listing %d", id),
		Latitude:   ptrFloat(lat),
		Longitude:  ptrFloat(lon),
		Status:     "open",
		CreatedAt:  time.Now().Add(-age),
	}
}

func testProfile(id int64, lat, lon float64, rating float64, txCount int, completeness float64) *UserProfile {
	return &UserProfile{
		ID:               id,
		TenantID:         1,
		Latitude:         ptrFloat(lat),
		Longitude:        ptrFloat(lon),
		TransactionCount: txCount,
		AverageRating:    ptrFloat(rating),
		CompletionScore:  completeness,
	}
}
