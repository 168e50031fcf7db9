package matching

import "github.com/lib/pq"

// DTOs for API requests/responses

type RecordInteractionDTO struct {
	ListingID  int64    `json:"listing_id" validate:"required"`
	Action     string   `json:"action" validate:"required,oneof=viewed saved contacted completed dismissed reported"`
	CategoryID int64    `json:"category_id,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty" validate:"omitempty,gte=0"`
}

type MarkConversionDTO struct {
	ListingID     int64  `json:"listing_id" validate:"required"`
	TransactionID string `json:"transaction_id" validate:"required,max=64"`
}

type SavePreferencesDTO struct {
	MaxDistanceKm    float64       `json:"max_distance_km" validate:"required,gt=0,lte=500"`
	MinMatchScore    float64       `json:"min_match_score" validate:"gte=0,lte=100"`
	NotifyHotMatches bool          `json:"notify_hot_matches"`
	NotifyNewMatches bool          `json:"notify_new_matches"`
	CategoryFilter   pq.Int64Array `json:"category_filter,omitempty"`
}
