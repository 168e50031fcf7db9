package matching

import (
	"math"
	"time"
)

// GeoConfig controls the distance-to-score mapping.
type GeoConfig struct {
	FullRadiusKm float64 // score stays 1.0 inside this radius
	DecayPerKm   float64 // linear decay per km beyond the full radius
	MinScore     float64 // floor, never decays below this
}

// FreshnessConfig controls the listing-age decay.
type FreshnessConfig struct {
	FullHours     float64 // score stays 1.0 up to this age
	HalfLifeHours float64 // exponential half-life beyond FullHours
	Minimum       float64 // floor
}

// DistanceKm returns the great-circle distance between two coordinates
// (haversine, Earth radius 6371 km).
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371 // km

	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// GeoScore maps a distance to a 0..1 multiplier: 1.0 within the full radius,
// then linear decay per km, floored at MinScore. A nil distance (either side
// has no coordinates) is neutral: missing location never penalizes a
// candidate.
func GeoScore(distanceKm *float64, cfg GeoConfig) float64 {
	if distanceKm == nil {
		return 1.0
	}
	if *distanceKm <= cfg.FullRadiusKm {
		return 1.0
	}
	score := 1.0 - (*distanceKm-cfg.FullRadiusKm)*cfg.DecayPerKm
	return math.Max(cfg.MinScore, score)
}

// FreshnessScore maps listing age to a 0..1 multiplier: 1.0 while the age is
// within FullHours, then exp(-ln2 * excess / halfLife), floored at Minimum.
// Evaluated against now at every call; a cached value would go stale.
func FreshnessScore(createdAt, now time.Time, cfg FreshnessConfig) float64 {
	ageHours := now.Sub(createdAt).Hours()
	if ageHours <= cfg.FullHours {
		return 1.0
	}
	excess := ageHours - cfg.FullHours
	score := math.Exp(-math.Ln2 * excess / cfg.HalfLifeHours)
	return math.Max(cfg.Minimum, score)
}
