package matching

import "testing"

func TestStatusAdvances(t *testing.T) {
	tests := []struct {
		from, to MatchStatus
		want     bool
	}{
		{StatusNew, StatusViewed, true},
		{StatusViewed, StatusSaved, true},
		{StatusSaved, StatusContacted, true},
		{StatusContacted, StatusCompleted, true},
		{StatusContacted, StatusDismissed, true},
		{StatusCompleted, StatusContacted, false},
		{StatusCompleted, StatusDismissed, false},
		{StatusViewed, StatusNew, false},
		{StatusViewed, StatusViewed, false},
		{StatusDismissed, StatusCompleted, true},
	}

	for _, tt := range tests {
		if got := StatusAdvances(tt.from, tt.to); got != tt.want {
			t.Errorf("StatusAdvances(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestListingTypeOpposite(t *testing.T) {
	if ListingOffer.Opposite() != ListingRequest {
		t.Error("offer should match request")
	}
	if ListingRequest.Opposite() != ListingOffer {
		t.Error("request should match offer")
	}
}

func TestActionWeights(t *testing.T) {
	tests := []struct {
		action   Action
		weight   float64
		positive bool
	}{
		{ActionViewed, 0.1, true},
		{ActionSaved, 0.3, true},
		{ActionContacted, 0.5, true},
		{ActionCompleted, 1.0, true},
		{ActionDismissed, -0.5, false},
		{ActionReported, -1.0, false},
	}

	for _, tt := range tests {
		if !ValidAction(tt.action) {
			t.Errorf("ValidAction(%s) = false", tt.action)
		}
		if got := ActionWeight(tt.action); got != tt.weight {
			t.Errorf("ActionWeight(%s) = %v, want %v", tt.action, got, tt.weight)
		}
		if got := PositiveAction(tt.action); got != tt.positive {
			t.Errorf("PositiveAction(%s) = %v, want %v", tt.action, got, tt.positive)
		}
	}

	if ValidAction(Action("liked")) {
		t.Error("unknown action should not validate")
	}
}

func TestDefaultPreferences(t *testing.T) {
	cfg := DefaultConfig()
	prefs := DefaultPreferences(cfg, 7, 42)

	if prefs.TenantID != 7 || prefs.UserID != 42 {
		t.Errorf("identity not carried: got tenant %d user %d", prefs.TenantID, prefs.UserID)
	}
	if prefs.MaxDistanceKm != cfg.MaxDistanceKm {
		t.Errorf("MaxDistanceKm = %v, want %v", prefs.MaxDistanceKm, cfg.MaxDistanceKm)
	}
	if prefs.MinMatchScore != cfg.MinMatchScore {
		t.Errorf("MinMatchScore = %v, want %v", prefs.MinMatchScore, cfg.MinMatchScore)
	}
	if !prefs.NotifyHotMatches {
		t.Error("hot match notifications should default on")
	}
}
