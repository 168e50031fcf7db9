package matching

// Config carries every scoring tunable. It is resolved once at startup and
// passed to the engine explicitly; nothing in this package keeps mutable
// package-level state.
type Config struct {
	Geo       GeoConfig
	Freshness FreshnessConfig

	// Point contributions per signal. Category + geo + freshness + quality
	// sum to 100 before the learned boost is applied.
	CategoryPoints  float64
	GeoPoints       float64
	FreshnessPoints float64
	QualityPoints   float64

	// Learned-boost bounds.
	MaxAffinityBoost float64 // affinity term clamped to ±this
	MaxDistanceBoost float64 // distance-tier term clamped to ±this
	MaxTotalBoost    float64 // combined boost clamped to ±this

	MinMatchScore        float64 // candidates below this are excluded
	HotScoreThreshold    float64
	HotMaxDistanceKm     float64
	MutualScoreThreshold float64 // reverse pass must reach this for a mutual match

	MaxDistanceKm      float64 // default candidate radius when prefs are absent
	CandidatePoolLimit int     // upper bound on listings fetched per scoring pass
	DefaultLimit       int     // results returned when the caller gives no limit

	LegacyScore float64 // fixed score assigned by the fallback matcher
}

// DefaultConfig returns the tuned defaults. The boost magnitudes are
// empirical; only their bounds and monotonicity are contractual.
func DefaultConfig() Config {
	return Config{
		Geo: GeoConfig{
			FullRadiusKm: 5,
			DecayPerKm:   0.02,
			MinScore:     0.1,
		},
		Freshness: FreshnessConfig{
			FullHours:     24,
			HalfLifeHours: 72,
			Minimum:       0.2,
		},
		CategoryPoints:  40,
		GeoPoints:       25,
		FreshnessPoints: 20,
		QualityPoints:   15,

		MaxAffinityBoost: 5,
		MaxDistanceBoost: 3,
		MaxTotalBoost:    10,

		MinMatchScore:        40,
		HotScoreThreshold:    80,
		HotMaxDistanceKm:     15,
		MutualScoreThreshold: 60,

		MaxDistanceKm:      100,
		CandidatePoolLimit: 200,
		DefaultLimit:       20,

		LegacyScore: 60,
	}
}
