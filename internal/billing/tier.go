package billing

import "strings"

// Tier is the canonical subscription level used across subscription, quota
// and user records. Provider-side names (basis/profi/unlimited from older
// store listings) are mapped to these at the catalog boundary and never
// stored.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// DefaultFreeSimulations is the free-tier allowance used when no explicit
// value is configured.
const DefaultFreeSimulations = 3

const basicSimulations = 30

// NormalizeTier maps arbitrary input to a canonical tier, defaulting to free.
func NormalizeTier(t string) Tier {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case string(TierBasic):
		return TierBasic
	case string(TierPremium):
		return TierPremium
	default:
		return TierFree
	}
}

// Rank orders tiers for comparisons; higher is more entitled.
func Rank(t Tier) int {
	switch t {
	case TierPremium:
		return 2
	case TierBasic:
		return 1
	default:
		return 0
	}
}

// SimulationLimit returns the per-period simulation allowance for a tier.
// nil means unlimited. freeAllowance lets deployments tune the free tier
// without a new build.
func SimulationLimit(t Tier, freeAllowance int) *int {
	switch t {
	case TierPremium:
		return nil
	case TierBasic:
		n := basicSimulations
		return &n
	default:
		if freeAllowance <= 0 {
			freeAllowance = DefaultFreeSimulations
		}
		n := freeAllowance
		return &n
	}
}

// Subscription statuses as persisted locally. Lemon Squeezy statuses are
// normalized into this set by the classifier.
const (
	StatusActive    = "active"
	StatusOnTrial   = "on_trial"
	StatusPastDue   = "past_due"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// ActiveLikeStatuses are the statuses that still entitle the user; at most
// one subscription per user may hold one of them.
var ActiveLikeStatuses = []string{StatusActive, StatusOnTrial, StatusPastDue}

// NormalizeStatus maps provider status strings onto the local status set.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StatusActive:
		return StatusActive
	case StatusOnTrial, "trialing":
		return StatusOnTrial
	case StatusPastDue, "unpaid":
		return StatusPastDue
	case StatusCancelled, "canceled":
		return StatusCancelled
	case StatusExpired:
		return StatusExpired
	default:
		return StatusActive
	}
}

// IsActiveLike reports whether a status still entitles the user.
func IsActiveLike(status string) bool {
	for _, s := range ActiveLikeStatuses {
		if s == status {
			return true
		}
	}
	return false
}
