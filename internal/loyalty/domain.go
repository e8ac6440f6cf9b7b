// internal/loyalty/domain.go
package loyalty

import (
	"errors"
	"math"

	"github.com/google/uuid"
)

// Tier is a named loyalty level derived purely from cumulative points.
type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// Inclusive lower bounds for each tier, evaluated highest first.
// Anything below SilverThreshold is Bronze.
const (
	PlatinumThreshold int64 = 3000
	GoldThreshold     int64 = 1500
	SilverThreshold   int64 = 500
)

// Accrual parameters: 10 points per full 100,000 currency units spent,
// a flat 500-point bonus per successful referral.
const (
	PointsPerIncrement int64   = 10
	PriceIncrement     float64 = 100000
	ReferralBonus      int64   = 500
)

// ReferralCodeLength is the fixed length of generated referral codes
// (3-letter prefix + 4 digits + 3-char ID suffix). Shorter strings are
// treated as no referral supplied.
const ReferralCodeLength = 10

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPrice    = errors.New("price paid must be positive")
)

// TierOf maps a cumulative point total to its tier. Pure and total: every
// non-negative point count maps to exactly one tier.
func TierOf(points int64) Tier {
	switch {
	case points >= PlatinumThreshold:
		return TierPlatinum
	case points >= GoldThreshold:
		return TierGold
	case points >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// PointsForPrice returns the points earned for a purchase amount. Partial
// price increments earn nothing.
func PointsForPrice(pricePaid float64) int64 {
	if pricePaid <= 0 {
		return 0
	}
	return int64(math.Floor(pricePaid/PriceIncrement)) * PointsPerIncrement
}

// Account is the loyalty-relevant view of a user record. The full record is
// owned by the accounts service; this engine only reads and accrues against
// these fields.
type Account struct {
	ID            uuid.UUID `json:"id"`
	FirstName     string    `json:"first_name"`
	LoyaltyPoints int64     `json:"loyalty_points"`
	Tier          Tier      `json:"tier"`
	ReferralCode  string    `json:"referral_code,omitempty"`
	Referrals     int64     `json:"referrals"`
}

// AccrualResult reports what processing a purchase did to the buyer's
// loyalty state.
type AccrualResult struct {
	Buyer           *Account `json:"buyer"`
	PointsEarned    int64    `json:"points_earned"`
	ReferralApplied bool     `json:"referral_applied"`
}
