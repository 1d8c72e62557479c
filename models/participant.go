package models

import (
	"time"

	"gorm.io/gorm"
)

// Participant is a local mirror of the profile service's user, extended
// with the referral state owned by this service.
// ReferralCode is assigned lazily on first request. ReferredByID is set
// at most once, by the apply workflow, and never changes afterwards.
type Participant struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // profile service UUID
	Username       string `gorm:"index;not null" json:"username"`

	ReferralCode *string `gorm:"uniqueIndex" json:"referral_code,omitempty"`
	ReferredByID *string `gorm:"index" json:"referred_by_id,omitempty"` // ExternalUserID of direct referrer

	// Point balances. Only ever incremented.
	XP              int64 `json:"xp" gorm:"default:0"`
	TotalReferralXP int64 `json:"total_referral_xp" gorm:"default:0"`
	TotalTaps       int64 `json:"total_taps" gorm:"default:0"`

	LastTapAt        *time.Time `json:"last_tap_at,omitempty"`
	LastDailyClaimAt *time.Time `json:"last_daily_claim_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
