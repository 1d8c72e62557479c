package models

import "time"

// RewardEventStatus is the processing state of a queued distribution
type RewardEventStatus string

const (
	RewardEventStatusPending    RewardEventStatus = "pending"
	RewardEventStatusProcessing RewardEventStatus = "processing"
	RewardEventStatusDone       RewardEventStatus = "done"
	RewardEventStatusFailed     RewardEventStatus = "failed"
)

// MaxRewardEventAttempts bounds retries before an event is parked as failed.
const MaxRewardEventAttempts = 5

// RewardEvent is the durable outbox row for a pending reward
// distribution. It is written in the same transaction as the point gain
// that produced it, so a crash between the gain and the payout cannot
// drop a reward.
type RewardEvent struct {
	ID         string            `gorm:"primaryKey;type:uuid" json:"id"`
	ReferredID string            `gorm:"index;not null" json:"referred_id"` // ExternalUserID of the earner
	Amount     int64             `gorm:"not null" json:"amount"`
	Status     RewardEventStatus `gorm:"index;not null;default:'pending'" json:"status"`

	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	Timestamps
}
