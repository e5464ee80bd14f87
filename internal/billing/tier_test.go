package billing

import "testing"

func TestNormalizeTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{in: "free", want: TierFree},
		{in: "basic", want: TierBasic},
		{in: "premium", want: TierPremium},
		{in: "PREMIUM", want: TierPremium},
		{in: " basic ", want: TierBasic},
		{in: "profi", want: TierFree}, // historical names map only at the catalog
		{in: "", want: TierFree},
	}

	for _, tt := range tests {
		if got := NormalizeTier(tt.in); got != tt.want {
			t.Fatalf("NormalizeTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRank(t *testing.T) {
	if Rank(TierFree) >= Rank(TierBasic) {
		t.Fatalf("expected basic to outrank free")
	}
	if Rank(TierBasic) >= Rank(TierPremium) {
		t.Fatalf("expected premium to outrank basic")
	}
}

func TestSimulationLimit(t *testing.T) {
	if limit := SimulationLimit(TierPremium, 3); limit != nil {
		t.Fatalf("expected premium to be unlimited, got %d", *limit)
	}
	if limit := SimulationLimit(TierBasic, 3); limit == nil || *limit != 30 {
		t.Fatalf("unexpected basic limit: %v", limit)
	}
	if limit := SimulationLimit(TierFree, 5); limit == nil || *limit != 5 {
		t.Fatalf("unexpected free limit: %v", limit)
	}
	if limit := SimulationLimit(TierFree, 0); limit == nil || *limit != DefaultFreeSimulations {
		t.Fatalf("expected default free allowance, got %v", limit)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "active", want: StatusActive},
		{in: "on_trial", want: StatusOnTrial},
		{in: "trialing", want: StatusOnTrial},
		{in: "past_due", want: StatusPastDue},
		{in: "unpaid", want: StatusPastDue},
		{in: "cancelled", want: StatusCancelled},
		{in: "canceled", want: StatusCancelled},
		{in: "expired", want: StatusExpired},
		{in: "", want: StatusActive},
	}

	for _, tt := range tests {
		if got := NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsActiveLike(t *testing.T) {
	for _, status := range []string{StatusActive, StatusOnTrial, StatusPastDue} {
		if !IsActiveLike(status) {
			t.Fatalf("expected status %q to be active-like", status)
		}
	}
	for _, status := range []string{StatusCancelled, StatusExpired, "paused"} {
		if IsActiveLike(status) {
			t.Fatalf("expected status %q to not be active-like", status)
		}
	}
}
