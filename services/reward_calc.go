package services

import (
	"math"

	"tap-referral-system/models"
)

// Reward share per tier: 10% for the direct referrer, then 5% and 2.5%.
var referralTierPercentages = [models.MaxReferralTier]float64{0.10, 0.05, 0.025}

// CalculateReferralReward returns the XP share an ancestor at the given
// tier earns from a base amount, rounded down. Zero is a valid result and
// callers treat it as a no-op.
func CalculateReferralReward(tier int, baseAmount int64) (int64, error) {
	if tier < 1 || tier > models.MaxReferralTier {
		return 0, ErrInvalidTier
	}
	if baseAmount < 0 {
		return 0, ErrInvalidAmount
	}
	return int64(math.Floor(float64(baseAmount) * referralTierPercentages[tier-1])), nil
}
