package models

import "time"

// MaxReferralTier bounds the chain depth: tier 1 is the direct referrer,
// tier 3 the great-grand referrer.
const MaxReferralTier = 3

// EdgeStatus is the lifecycle state of a referral edge
type EdgeStatus string

const (
	EdgeStatusPending EdgeStatus = "pending"
	EdgeStatusActive  EdgeStatus = "active"
	EdgeStatusExpired EdgeStatus = "expired"
)

// ReferralEdge records one referrer→referred relationship at a specific
// tier. A single application creates up to MaxReferralTier edges, one per
// ancestor. The (referred_id, tier) unique index guarantees at most one
// edge per tier for any referred participant.
type ReferralEdge struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string `gorm:"index;not null" json:"referrer_id"`                          // ExternalUserID
	ReferredID string `gorm:"uniqueIndex:idx_referred_tier;not null" json:"referred_id"`  // ExternalUserID
	Tier       int    `gorm:"uniqueIndex:idx_referred_tier;not null" json:"tier"`

	CodeUsed string     `gorm:"index;not null" json:"code_used"`
	Status   EdgeStatus `gorm:"index;not null;default:'active'" json:"status"`

	TotalRewardsDistributed int64      `json:"total_rewards_distributed" gorm:"default:0"`
	DateReferred            time.Time  `json:"date_referred"`
	LastRewardAt            *time.Time `json:"last_reward_at,omitempty"`

	Timestamps
}
