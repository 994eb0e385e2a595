package core

// Tier is a subscription price bracket.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// Tier thresholds (inclusive lower bounds on member count) and monthly prices in cents.
const (
	TierAMinMembers = 50
	TierBMinMembers = 300
	TierCMinMembers = 500

	TierAPrice int64 = 18900
	TierBPrice int64 = 25000
	TierCPrice int64 = 29900
)

// Quote is the server-side price for a member count.
type Quote struct {
	MemberCount int   `json:"memberCount"`
	Tier        Tier  `json:"tier"`
	Amount      int64 `json:"amount"`
}

// TierForMembers selects the tier for memberCount. Tier A is also the floor below 50 members.
func TierForMembers(memberCount int) Tier {
	switch {
	case memberCount >= TierCMinMembers:
		return TierC
	case memberCount >= TierBMinMembers:
		return TierB
	default:
		return TierA
	}
}

// PriceForMembers returns the monthly price in cents for memberCount.
func PriceForMembers(memberCount int) int64 {
	switch TierForMembers(memberCount) {
	case TierC:
		return TierCPrice
	case TierB:
		return TierBPrice
	default:
		return TierAPrice
	}
}

// QuoteFor bundles tier and price for memberCount.
func QuoteFor(memberCount int) Quote {
	return Quote{MemberCount: memberCount, Tier: TierForMembers(memberCount), Amount: PriceForMembers(memberCount)}
}
