package matching

import (
	"time"

	"github.com/lib/pq"
)

// ListingType distinguishes the two sides of a timebank exchange.
type ListingType string

const (
	ListingOffer   ListingType = "offer"
	ListingRequest ListingType = "request"
)

// Opposite returns the complementary listing type (offers match requests).
func (t ListingType) Opposite() ListingType {
	if t == ListingOffer {
		return ListingRequest
	}
	return ListingOffer
}

// Listing is the read model consumed from the listings subsystem.
// The engine never writes this table.
type Listing struct {
	ID         int64      `json:"id" db:"id"`
	TenantID   int64      `json:"tenant_id" db:"tenant_id"`
	OwnerID    int64      `json:"owner_id" db:"owner_id"`
	Type       ListingType `json:"type" db:"type"`
	CategoryID int64      `json:"category_id" db:"category_id"`
	Title      string     `json:"title" db:"title"`
	Latitude   *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude  *float64   `json:"longitude,omitempty" db:"longitude"`
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// UserProfile is the subset of the users read model the scorer consumes.
type UserProfile struct {
	ID               int64    `json:"id" db:"id"`
	TenantID         int64    `json:"tenant_id" db:"tenant_id"`
	Latitude         *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64 `json:"longitude,omitempty" db:"longitude"`
	TransactionCount int      `json:"transaction_count" db:"transaction_count"`
	AverageRating    *float64 `json:"average_rating,omitempty" db:"average_rating"`
	CompletionScore  float64  `json:"completion_score" db:"completion_score"`
}

// Match types as persisted in match_cache.
const (
	MatchTypeStandard = "standard"
	MatchTypeHot      = "hot"
	MatchTypeMutual   = "mutual"
	MatchTypeLegacy   = "legacy"
)

// MatchResult is one ranked suggestion for a seeker.
type MatchResult struct {
	Listing    *Listing `json:"listing"`
	Score      float64  `json:"score"`
	Reasons    []string `json:"reasons"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	MatchType  string   `json:"match_type"`
}

// MatchStatus tracks the suggestion funnel per cache entry.
type MatchStatus string

const (
	StatusNew       MatchStatus = "new"
	StatusViewed    MatchStatus = "viewed"
	StatusSaved     MatchStatus = "saved"
	StatusContacted MatchStatus = "contacted"
	StatusDismissed MatchStatus = "dismissed"
	StatusCompleted MatchStatus = "completed"
)

// statusRank orders the status lattice new → viewed → saved → contacted →
// dismissed → completed. A write only lands when the new rank is strictly
// higher, so completed never regresses and stale recomputes cannot downgrade
// an entry.
var statusRank = map[MatchStatus]int{
	StatusNew:       0,
	StatusViewed:    1,
	StatusSaved:     2,
	StatusContacted: 3,
	StatusDismissed: 4,
	StatusCompleted: 5,
}

// StatusAdvances reports whether moving from to the target status is a
// forward move on the lattice.
func StatusAdvances(from, to MatchStatus) bool {
	return statusRank[to] > statusRank[from]
}

// Action is a raw interaction signal feeding the learning loop.
type Action string

const (
	ActionViewed    Action = "viewed"
	ActionSaved     Action = "saved"
	ActionContacted Action = "contacted"
	ActionCompleted Action = "completed"
	ActionDismissed Action = "dismissed"
	ActionReported  Action = "reported"
)

// actionWeights are the learning weights per interaction type.
var actionWeights = map[Action]float64{
	ActionViewed:    0.1,
	ActionSaved:     0.3,
	ActionContacted: 0.5,
	ActionCompleted: 1.0,
	ActionDismissed: -0.5,
	ActionReported:  -1.0,
}

// actionCounterColumn maps each action to its affinity counter column.
// Resolved in code so SQL never interpolates caller input into identifiers.
var actionCounterColumn = map[Action]string{
	ActionViewed:    "view_count",
	ActionSaved:     "save_count",
	ActionContacted: "contact_count",
	ActionCompleted: "transaction_count",
	ActionDismissed: "dismiss_count",
	ActionReported:  "dismiss_count",
}

// actionStatus maps interactions onto the cache status lattice.
var actionStatus = map[Action]MatchStatus{
	ActionViewed:    StatusViewed,
	ActionSaved:     StatusSaved,
	ActionContacted: StatusContacted,
	ActionCompleted: StatusCompleted,
	ActionDismissed: StatusDismissed,
	ActionReported:  StatusDismissed,
}

// ValidAction reports whether a caller-supplied action is known.
func ValidAction(a Action) bool {
	_, ok := actionWeights[a]
	return ok
}

// ActionWeight returns the learning weight for an action (0 for unknown).
func ActionWeight(a Action) float64 {
	return actionWeights[a]
}

// PositiveAction reports whether the action moves distance-preference
// learning. Negative signals adjust category affinity only.
func PositiveAction(a Action) bool {
	return actionWeights[a] > 0
}

// CategoryAffinity is the per-(user,category) learned preference row.
type CategoryAffinity struct {
	TenantID         int64     `json:"tenant_id" db:"tenant_id"`
	UserID           int64     `json:"user_id" db:"user_id"`
	CategoryID       int64     `json:"category_id" db:"category_id"`
	AffinityScore    float64   `json:"affinity_score" db:"affinity_score"`
	ViewCount        int       `json:"view_count" db:"view_count"`
	SaveCount        int       `json:"save_count" db:"save_count"`
	ContactCount     int       `json:"contact_count" db:"contact_count"`
	TransactionCount int       `json:"transaction_count" db:"transaction_count"`
	DismissCount     int       `json:"dismiss_count" db:"dismiss_count"`
	LastInteraction  time.Time `json:"last_interaction" db:"last_interaction"`
}

// DistancePreference holds the five distance buckets and the learned radius.
type DistancePreference struct {
	TenantID       int64     `json:"tenant_id" db:"tenant_id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Bucket0To2     int       `json:"bucket_0_2km" db:"bucket_0_2km"`
	Bucket2To5     int       `json:"bucket_2_5km" db:"bucket_2_5km"`
	Bucket5To15    int       `json:"bucket_5_15km" db:"bucket_5_15km"`
	Bucket15To50   int       `json:"bucket_15_50km" db:"bucket_15_50km"`
	Bucket50Plus   int       `json:"bucket_50km_plus" db:"bucket_50km_plus"`
	StatedMaxKm    *float64  `json:"stated_max_distance_km,omitempty" db:"stated_max_distance_km"`
	LearnedMaxKm   *float64  `json:"learned_max_distance_km,omitempty" db:"learned_max_distance_km"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Buckets returns the counters in ascending distance order.
func (d *DistancePreference) Buckets() [5]int {
	return [5]int{d.Bucket0To2, d.Bucket2To5, d.Bucket5To15, d.Bucket15To50, d.Bucket50Plus}
}

// MatchCacheEntry is one persisted suggestion, keyed (tenant, user, listing).
type MatchCacheEntry struct {
	ID         int64       `json:"id" db:"id"`
	TenantID   int64       `json:"tenant_id" db:"tenant_id"`
	UserID     int64       `json:"user_id" db:"user_id"`
	ListingID  int64       `json:"listing_id" db:"listing_id"`
	MatchScore float64     `json:"match_score" db:"match_score"`
	MatchType  string      `json:"match_type" db:"match_type"`
	DistanceKm *float64    `json:"distance_km,omitempty" db:"distance_km"`
	Status     MatchStatus `json:"status" db:"status"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// MatchHistoryEvent is one append-only interaction row. Only the conversion
// fields may be set after insert, exactly once, by MarkConversion.
type MatchHistoryEvent struct {
	ID                    int64      `json:"id" db:"id"`
	EventRef              string     `json:"event_ref" db:"event_ref"`
	TenantID              int64      `json:"tenant_id" db:"tenant_id"`
	UserID                int64      `json:"user_id" db:"user_id"`
	ListingID             int64      `json:"listing_id" db:"listing_id"`
	CategoryID            int64      `json:"category_id" db:"category_id"`
	Action                Action     `json:"action" db:"action"`
	DistanceKm            *float64   `json:"distance_km,omitempty" db:"distance_km"`
	ResultedInTransaction bool       `json:"resulted_in_transaction" db:"resulted_in_transaction"`
	TransactionID         *string    `json:"transaction_id,omitempty" db:"transaction_id"`
	ConversionTime        *time.Time `json:"conversion_time,omitempty" db:"conversion_time"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
}

// MatchPreferences is the per-user matching configuration.
type MatchPreferences struct {
	TenantID         int64         `json:"tenant_id" db:"tenant_id"`
	UserID           int64         `json:"user_id" db:"user_id"`
	MaxDistanceKm    float64       `json:"max_distance_km" db:"max_distance_km"`
	MinMatchScore    float64       `json:"min_match_score" db:"min_match_score"`
	NotifyHotMatches bool          `json:"notify_hot_matches" db:"notify_hot_matches"`
	NotifyNewMatches bool          `json:"notify_new_matches" db:"notify_new_matches"`
	CategoryFilter   pq.Int64Array `json:"category_filter" db:"category_filter"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// DefaultPreferences returns the preferences applied when a user has no row.
func DefaultPreferences(cfg Config, tenantID, userID int64) *MatchPreferences {
	return &MatchPreferences{
		TenantID:         tenantID,
		UserID:           userID,
		MaxDistanceKm:    cfg.MaxDistanceKm,
		MinMatchScore:    cfg.MinMatchScore,
		NotifyHotMatches: true,
		NotifyNewMatches: true,
	}
}
