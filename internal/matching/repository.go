package matching

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository interface {
	// Read models (owned by the listings/users subsystems)
	GetOpenListings(ctx context.Context, tenantID, ownerID int64) ([]*Listing, error)
	GetListing(ctx context.Context, tenantID, listingID int64) (*Listing, error)
	FindCandidateListings(ctx context.Context, tenantID, excludeOwnerID int64, types []ListingType, categoryIDs []int64, limit int) ([]*Listing, error)
	GetUserProfile(ctx context.Context, tenantID, userID int64) (*UserProfile, error)
	GetUserProfiles(ctx context.Context, tenantID int64, userIDs []int64) (map[int64]*UserProfile, error)

	// Match cache
	UpsertCacheEntry(ctx context.Context, e *MatchCacheEntry) error
	AdvanceCacheStatus(ctx context.Context, tenantID, userID, listingID int64, status MatchStatus, distanceKm *float64) error
	GetCachedMatches(ctx context.Context, tenantID, userID int64, matchType string, limit int) ([]*MatchCacheEntry, error)

	// History ledger
	AppendHistory(ctx context.Context, ev *MatchHistoryEvent) error
	AttachConversion(ctx context.Context, tenantID, userID, listingID int64, transactionID string) error

	// Learning state
	UpsertCategoryAffinity(ctx context.Context, tenantID, userID, categoryID int64, action Action) error
	GetCategoryAffinities(ctx context.Context, tenantID, userID int64) (map[int64]float64, error)
	IncrementDistanceBucket(ctx context.Context, tenantID, userID int64, bucket int) error
	GetDistancePreference(ctx context.Context, tenantID, userID int64) (*DistancePreference, error)
	SetLearnedMaxDistance(ctx context.Context, tenantID, userID int64, learnedKm *float64) error
	ResetUserLearning(ctx context.Context, tenantID, userID int64) error

	// Per-user preferences
	GetPreferences(ctx context.Context, tenantID, userID int64) (*MatchPreferences, error)
	SavePreferences(ctx context.Context, p *MatchPreferences) error

	// Analytics aggregates
	ScoreDistribution(ctx context.Context, tenantID int64) ([4]int64, error)
	DistanceDistribution(ctx context.Context, tenantID int64) ([5]int64, error)
	FunnelCounts(ctx context.Context, tenantID int64) (*FunnelCounts, error)
	AvgHoursToConversion(ctx context.Context, tenantID int64) (float64, error)
	TopConvertingCategories(ctx context.Context, tenantID int64, limit int) ([]CategoryConversion, error)

	// Notification sweep support
	ListNotifiableUsers(ctx context.Context, limit int) ([]NotifiableUser, error)

	// WithTx runs fn against a transaction-scoped copy of the repository.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// NotifiableUser identifies a user opted into the periodic match sweep.
type NotifiableUser struct {
	TenantID int64 `db:"tenant_id"`
	UserID   int64 `db:"user_id"`
}

type postgresRepository struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db, ext: db}
}

func (r *postgresRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	if _, ok := r.ext.(*sqlx.Tx); ok {
		// Already transaction-scoped; nest flatly.
		return fn(r)
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&postgresRepository{db: r.db, ext: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Read model methods

func (r *postgresRepository) GetOpenListings(ctx context.Context, tenantID, ownerID int64) ([]*Listing, error) {
	var listings []*Listing
	query := `
        SELECT id, tenant_id, owner_id, type, category_id, title,
               latitude, longitude, status, created_at
        FROM listings
        WHERE tenant_id = $1 AND owner_id = $2 AND status = 'open'
        ORDER BY created_at DESC
    `
	err := sqlx.SelectContext(ctx, r.ext, &listings, query, tenantID, ownerID)
	return listings, err
}

func (r *postgresRepository) GetListing(ctx context.Context, tenantID, listingID int64) (*Listing, error) {
	var listing Listing
	query := `
        SELECT id, tenant_id, owner_id, type, category_id, title,
               latitude, longitude, status, created_at
        FROM listings
        WHERE tenant_id = $1 AND id = $2
    `
	err := sqlx.GetContext(ctx, r.ext, &listing, query, tenantID, listingID)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *postgresRepository) FindCandidateListings(ctx context.Context, tenantID, excludeOwnerID int64, types []ListingType, categoryIDs []int64, limit int) ([]*Listing, error) {
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}

	query := `
        SELECT id, tenant_id, owner_id, type, category_id, title,
               latitude, longitude, status, created_at
        FROM listings
        WHERE tenant_id = $1 AND owner_id <> $2 AND status = 'open'
              AND type = ANY($3)
    `
	args := []interface{}{tenantID, excludeOwnerID, pq.Array(typeNames)}

	if len(categoryIDs) > 0 {
		query += " AND category_id = ANY($4) ORDER BY created_at DESC LIMIT $5"
		args = append(args, pq.Array(categoryIDs), limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $4"
		args = append(args, limit)
	}

	var listings []*Listing
	err := sqlx.SelectContext(ctx, r.ext, &listings, query, args...)
	return listings, err
}

func (r *postgresRepository) GetUserProfile(ctx context.Context, tenantID, userID int64) (*UserProfile, error) {
	var profile UserProfile
	query := `
        SELECT id, tenant_id, latitude, longitude,
               transaction_count, average_rating, completion_score
        FROM users
        WHERE tenant_id = $1 AND id = $2
    `
	err := sqlx.GetContext(ctx, r.ext, &profile, query, tenantID, userID)
	if err == sql.ErrNoRows {
		// Missing profile is data-unavailable, not an error: the scorer
		// treats it as neutral.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *postgresRepository) GetUserProfiles(ctx context.Context, tenantID int64, userIDs []int64) (map[int64]*UserProfile, error) {
	profiles := make(map[int64]*UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}

	query := `
        SELECT id, tenant_id, latitude, longitude,
               transaction_count, average_rating, completion_score
        FROM users
        WHERE tenant_id = $1 AND id = ANY($2)
    `
	var rows []*UserProfile
	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, tenantID, pq.Array(userIDs)); err != nil {
		return nil, err
	}
	for _, p := range rows {
		profiles[p.ID] = p
	}
	return profiles, nil
}

// Match cache methods

func (r *postgresRepository) UpsertCacheEntry(ctx context.Context, e *MatchCacheEntry) error {
	// A recompute refreshes score/type/distance but never touches status:
	// the funnel position belongs to the interaction path.
	query := `
        INSERT INTO match_cache (
            tenant_id, user_id, listing_id, match_score, match_type, distance_km, status
        ) VALUES ($1, $2, $3, $4, $5, $6, 'new')
        ON CONFLICT (tenant_id, user_id, listing_id)
        DO UPDATE SET
            match_score = EXCLUDED.match_score,
            match_type = EXCLUDED.match_type,
            distance_km = EXCLUDED.distance_km,
            updated_at = NOW()
        RETURNING id, status, created_at, updated_at
    `
	return sqlx.GetContext(ctx, r.ext, e, query,
		e.TenantID, e.UserID, e.ListingID, e.MatchScore, e.MatchType, e.DistanceKm)
}

// statusRankCase mirrors statusRank in SQL so the advance check runs inside a
// single conditional statement. Fixed string, never built from caller input.
const statusRankCase = `CASE %s
        WHEN 'new' THEN 0 WHEN 'viewed' THEN 1 WHEN 'saved' THEN 2
        WHEN 'contacted' THEN 3 WHEN 'dismissed' THEN 4 WHEN 'completed' THEN 5
        ELSE 0 END`

func (r *postgresRepository) AdvanceCacheStatus(ctx context.Context, tenantID, userID, listingID int64, status MatchStatus, distanceKm *float64) error {
	query := fmt.Sprintf(`
        INSERT INTO match_cache (
            tenant_id, user_id, listing_id, match_score, match_type, distance_km, status
        ) VALUES ($1, $2, $3, 0, 'standard', $4, $5)
        ON CONFLICT (tenant_id, user_id, listing_id)
        DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
        WHERE `+statusRankCase+` < `+statusRankCase,
		"match_cache.status", "EXCLUDED.status")

	_, err := r.ext.ExecContext(ctx, query, tenantID, userID, listingID, distanceKm, string(status))
	return err
}

func (r *postgresRepository) GetCachedMatches(ctx context.Context, tenantID, userID int64, matchType string, limit int) ([]*MatchCacheEntry, error) {
	query := `
        SELECT id, tenant_id, user_id, listing_id, match_score, match_type,
               distance_km, status, created_at, updated_at
        FROM match_cache
        WHERE tenant_id = $1 AND user_id = $2 AND status <> 'dismissed'
    `
	args := []interface{}{tenantID, userID}

	if matchType != "" {
		query += " AND match_type = $3 ORDER BY match_score DESC, created_at DESC LIMIT $4"
		args = append(args, matchType, limit)
	} else {
		query += " ORDER BY match_score DESC, created_at DESC LIMIT $3"
		args = append(args, limit)
	}

	var entries []*MatchCacheEntry
	err := sqlx.SelectContext(ctx, r.ext, &entries, query, args...)
	return entries, err
}

// History ledger methods

func (r *postgresRepository) AppendHistory(ctx context.Context, ev *MatchHistoryEvent) error {
	if ev.EventRef == "" {
		ev.EventRef = uuid.NewString()
	}
	query := `
        INSERT INTO match_history (
            event_ref, tenant_id, user_id, listing_id, category_id, action, distance_km
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at
    `
	return r.ext.QueryRowxContext(ctx, query,
		ev.EventRef, ev.TenantID, ev.UserID, ev.ListingID, ev.CategoryID,
		string(ev.Action), ev.DistanceKm,
	).Scan(&ev.ID, &ev.CreatedAt)
}

func (r *postgresRepository) AttachConversion(ctx context.Context, tenantID, userID, listingID int64, transactionID string) error {
	// Attach to the most recent qualifying event, exactly once. No row means
	// there was never an interaction to convert; the caller reports
	// not-found instead of fabricating one.
	query := `
        UPDATE match_history
        SET action = 'completed',
            resulted_in_transaction = TRUE,
            transaction_id = $4,
            conversion_time = NOW()
        WHERE id = (
            SELECT id FROM match_history
            WHERE tenant_id = $1 AND user_id = $2 AND listing_id = $3
                  AND action IN ('viewed', 'saved', 'contacted')
                  AND resulted_in_transaction = FALSE
            ORDER BY created_at DESC, id DESC
            LIMIT 1
        )
    `
	res, err := r.ext.ExecContext(ctx, query, tenantID, userID, listingID, transactionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConversionNotFound
	}
	return nil
}

// Learning state methods

func (r *postgresRepository) UpsertCategoryAffinity(ctx context.Context, tenantID, userID, categoryID int64, action Action) error {
	column, ok := actionCounterColumn[action]
	if !ok {
		return ErrInvalidAction
	}
	weight := ActionWeight(action)

	// Single-statement upsert: concurrent interactions increment, they never
	// race a read-modify-write. The counter column comes from the fixed
	// action map above, everything else is parameterized.
	query := fmt.Sprintf(`
        INSERT INTO user_category_affinity AS a (
            tenant_id, user_id, category_id, affinity_score, %s, last_interaction
        ) VALUES ($1, $2, $3, $4, 1, NOW())
        ON CONFLICT (tenant_id, user_id, category_id)
        DO UPDATE SET
            affinity_score = LEAST(100, GREATEST(0, a.affinity_score + $5)),
            %s = a.%s + 1,
            last_interaction = NOW()
    `, column, column, column)

	_, err := r.ext.ExecContext(ctx, query,
		tenantID, userID, categoryID, affinitySeed(weight), affinityDelta(weight))
	return err
}

func (r *postgresRepository) GetCategoryAffinities(ctx context.Context, tenantID, userID int64) (map[int64]float64, error) {
	query := `
        SELECT category_id, affinity_score
        FROM user_category_affinity
        WHERE tenant_id = $1 AND user_id = $2
    `
	rows, err := r.ext.QueryxContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	affinities := make(map[int64]float64)
	for rows.Next() {
		var categoryID int64
		var score float64
		if err := rows.Scan(&categoryID, &score); err != nil {
			return nil, err
		}
		affinities[categoryID] = score
	}
	return affinities, rows.Err()
}

func (r *postgresRepository) IncrementDistanceBucket(ctx context.Context, tenantID, userID int64, bucket int) error {
	if bucket < 0 || bucket >= len(bucketColumns) {
		return fmt.Errorf("distance bucket %d out of range", bucket)
	}
	column := bucketColumns[bucket]

	query := fmt.Sprintf(`
        INSERT INTO user_distance_preference AS p (tenant_id, user_id, %s)
        VALUES ($1, $2, 1)
        ON CONFLICT (tenant_id, user_id)
        DO UPDATE SET %s = p.%s + 1, updated_at = NOW()
    `, column, column, column)

	_, err := r.ext.ExecContext(ctx, query, tenantID, userID)
	return err
}

func (r *postgresRepository) GetDistancePreference(ctx context.Context, tenantID, userID int64) (*DistancePreference, error) {
	var pref DistancePreference
	query := `
        SELECT tenant_id, user_id, bucket_0_2km, bucket_2_5km, bucket_5_15km,
               bucket_15_50km, bucket_50km_plus, stated_max_distance_km,
               learned_max_distance_km, updated_at
        FROM user_distance_preference
        WHERE tenant_id = $1 AND user_id = $2
    `
	err := sqlx.GetContext(ctx, r.ext, &pref, query, tenantID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *postgresRepository) SetLearnedMaxDistance(ctx context.Context, tenantID, userID int64, learnedKm *float64) error {
	query := `
        UPDATE user_distance_preference
        SET learned_max_distance_km = $3, updated_at = NOW()
        WHERE tenant_id = $1 AND user_id = $2
    `
	_, err := r.ext.ExecContext(ctx, query, tenantID, userID, learnedKm)
	return err
}

func (r *postgresRepository) ResetUserLearning(ctx context.Context, tenantID, userID int64) error {
	if _, err := r.ext.ExecContext(ctx,
		`DELETE FROM user_category_affinity WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID); err != nil {
		return err
	}
	_, err := r.ext.ExecContext(ctx,
		`DELETE FROM user_distance_preference WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID)
	return err
}

// Preference methods

func (r *postgresRepository) GetPreferences(ctx context.Context, tenantID, userID int64) (*MatchPreferences, error) {
	var prefs MatchPreferences
	query := `
        SELECT tenant_id, user_id, max_distance_km, min_match_score,
               notify_hot_matches, notify_new_matches, category_filter, updated_at
        FROM match_preferences
        WHERE tenant_id = $1 AND user_id = $2
    `
	err := sqlx.GetContext(ctx, r.ext, &prefs, query, tenantID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

func (r *postgresRepository) SavePreferences(ctx context.Context, p *MatchPreferences) error {
	query := `
        INSERT INTO match_preferences (
            tenant_id, user_id, max_distance_km, min_match_score,
            notify_hot_matches, notify_new_matches, category_filter
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (tenant_id, user_id)
        DO UPDATE SET
            max_distance_km = EXCLUDED.max_distance_km,
            min_match_score = EXCLUDED.min_match_score,
            notify_hot_matches = EXCLUDED.notify_hot_matches,
            notify_new_matches = EXCLUDED.notify_new_matches,
            category_filter = EXCLUDED.category_filter,
            updated_at = NOW()
        RETURNING updated_at
    `
	return r.ext.QueryRowxContext(ctx, query,
		p.TenantID, p.UserID, p.MaxDistanceKm, p.MinMatchScore,
		p.NotifyHotMatches, p.NotifyNewMatches, p.CategoryFilter,
	).Scan(&p.UpdatedAt)
}

// Analytics methods

func (r *postgresRepository) ScoreDistribution(ctx context.Context, tenantID int64) ([4]int64, error) {
	var dist [4]int64
	query := `
        SELECT
            COUNT(*) FILTER (WHERE match_score < 40) AS b1,
            COUNT(*) FILTER (WHERE match_score >= 40 AND match_score < 60) AS b2,
            COUNT(*) FILTER (WHERE match_score >= 60 AND match_score < 80) AS b3,
            COUNT(*) FILTER (WHERE match_score >= 80) AS b4
        FROM match_cache
        WHERE tenant_id = $1
    `
	err := r.ext.QueryRowxContext(ctx, query, tenantID).
		Scan(&dist[0], &dist[1], &dist[2], &dist[3])
	return dist, err
}

func (r *postgresRepository) DistanceDistribution(ctx context.Context, tenantID int64) ([5]int64, error) {
	var dist [5]int64
	query := `
        SELECT
            COUNT(*) FILTER (WHERE distance_km <= 2) AS b1,
            COUNT(*) FILTER (WHERE distance_km > 2 AND distance_km <= 5) AS b2,
            COUNT(*) FILTER (WHERE distance_km > 5 AND distance_km <= 15) AS b3,
            COUNT(*) FILTER (WHERE distance_km > 15 AND distance_km <= 50) AS b4,
            COUNT(*) FILTER (WHERE distance_km > 50) AS b5
        FROM match_cache
        WHERE tenant_id = $1 AND distance_km IS NOT NULL
    `
	err := r.ext.QueryRowxContext(ctx, query, tenantID).
		Scan(&dist[0], &dist[1], &dist[2], &dist[3], &dist[4])
	return dist, err
}

func (r *postgresRepository) FunnelCounts(ctx context.Context, tenantID int64) (*FunnelCounts, error) {
	funnel := &FunnelCounts{}

	if err := sqlx.GetContext(ctx, r.ext, &funnel.Matched,
		`SELECT COUNT(*) FROM match_cache WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, err
	}

	query := `
        SELECT
            COUNT(DISTINCT (user_id, listing_id)) FILTER (WHERE action = 'viewed') AS viewed,
            COUNT(DISTINCT (user_id, listing_id)) FILTER (WHERE action = 'contacted') AS contacted,
            COUNT(DISTINCT (user_id, listing_id)) FILTER (WHERE action = 'completed') AS completed
        FROM match_history
        WHERE tenant_id = $1
    `
	err := r.ext.QueryRowxContext(ctx, query, tenantID).
		Scan(&funnel.Viewed, &funnel.Contacted, &funnel.Completed)
	if err != nil {
		return nil, err
	}
	return funnel, nil
}

func (r *postgresRepository) AvgHoursToConversion(ctx context.Context, tenantID int64) (float64, error) {
	var hours float64
	query := `
        SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (conversion_time - created_at)) / 3600.0), 0)
        FROM match_history
        WHERE tenant_id = $1 AND resulted_in_transaction = TRUE AND conversion_time IS NOT NULL
    `
	err := sqlx.GetContext(ctx, r.ext, &hours, query, tenantID)
	return hours, err
}

func (r *postgresRepository) TopConvertingCategories(ctx context.Context, tenantID int64, limit int) ([]CategoryConversion, error) {
	var top []CategoryConversion
	query := `
        SELECT category_id, COUNT(*) AS conversions
        FROM match_history
        WHERE tenant_id = $1 AND resulted_in_transaction = TRUE
        GROUP BY category_id
        ORDER BY conversions DESC, category_id ASC
        LIMIT $2
    `
	err := sqlx.SelectContext(ctx, r.ext, &top, query, tenantID, limit)
	return top, err
}

func (r *postgresRepository) ListNotifiableUsers(ctx context.Context, limit int) ([]NotifiableUser, error) {
	var users []NotifiableUser
	query := `
        SELECT tenant_id, user_id
        FROM match_preferences
        WHERE notify_new_matches = TRUE OR notify_hot_matches = TRUE
        ORDER BY tenant_id, user_id
        LIMIT $1
    `
	err := sqlx.SelectContext(ctx, r.ext, &users, query, limit)
	return users, err
}
