package services

import (
	"fmt"
	"log"
	"time"

	"tap-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RewardDistributor propagates reward shares up the persisted referral
// chain whenever a referred participant earns points. It only reads the
// ledger edges captured at application time; it never re-walks the live
// ancestry, which stays correct because referred_by_id is immutable once
// set.
type RewardDistributor struct {
	DB *gorm.DB
}

func NewRewardDistributor(db *gorm.DB) *RewardDistributor {
	return &RewardDistributor{DB: db}
}

// EnqueueRewardEvent records a pending distribution. Callers pass the
// transaction that recorded the point gain so the gain and the queued
// payout commit together.
func (d *RewardDistributor) EnqueueRewardEvent(tx *gorm.DB, referredID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	event := models.RewardEvent{
		ID:         uuid.NewString(),
		ReferredID: referredID,
		Amount:     amount,
		Status:     models.RewardEventStatusPending,
	}
	return tx.Create(&event).Error
}

// Distribute applies the tier schedule for one point-earning event. All
// edge and ancestor updates commit in a single transaction. Each edge
// runs under its own savepoint: an ancestor that fails individually is
// rolled back, logged and skipped, so the rest still get paid.
func (d *RewardDistributor) Distribute(referredID string, baseAmount int64) error {
	if baseAmount < 0 {
		return ErrInvalidAmount
	}
	return d.DB.Transaction(func(tx *gorm.DB) error {
		var edges []models.ReferralEdge
		if err := tx.Where("referred_id = ? AND status = ?", referredID, models.EdgeStatusActive).
			Order("tier ASC").
			Find(&edges).Error; err != nil {
			return err
		}

		now := time.Now()
		for i := range edges {
			edge := &edges[i]
			err := tx.Transaction(func(inner *gorm.DB) error {
				return applyEdgeReward(inner, edge, baseAmount, now)
			})
			if err != nil {
				log.Printf("[DISTRIBUTOR] Skipping edge %s (tier %d) for %s: %v",
					edge.ID, edge.Tier, referredID, err)
			}
		}
		return nil
	})
}

// applyEdgeReward credits one ancestor and bumps the edge counters. Zero
// rewards are a no-op so edge timestamps do not churn.
func applyEdgeReward(tx *gorm.DB, edge *models.ReferralEdge, baseAmount int64, now time.Time) error {
	reward, err := CalculateReferralReward(edge.Tier, baseAmount)
	if err != nil {
		return err
	}
	if reward == 0 {
		return nil
	}

	res := tx.Model(&models.Participant{}).
		Where("external_user_id = ?", edge.ReferrerID).
		Updates(map[string]interface{}{
			"xp":                gorm.Expr("xp + ?", reward),
			"total_referral_xp": gorm.Expr("total_referral_xp + ?", reward),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ancestor %s not found", edge.ReferrerID)
	}

	return tx.Model(&models.ReferralEdge{}).
		Where("id = ?", edge.ID).
		Updates(map[string]interface{}{
			"total_rewards_distributed": gorm.Expr("total_rewards_distributed + ?", reward),
			"last_reward_at":            now,
		}).Error
}

// rewardEventLease is how long a processing claim is honored. A worker
// that crashed after claiming an event renews nothing, so once the lease
// runs out the event becomes claimable again.
const rewardEventLease = 5 * time.Minute

// ProcessPending claims and applies up to limit reward events: pending
// rows plus processing rows whose lease expired. Returns the number of
// events completed.
func (d *RewardDistributor) ProcessPending(limit int) (int, error) {
	staleBefore := time.Now().Add(-rewardEventLease)

	var events []models.RewardEvent
	if err := d.DB.Where("attempts < ?", models.MaxRewardEventAttempts).
		Where(d.DB.
			Where("status = ?", models.RewardEventStatusPending).
			Or("status = ? AND updated_at < ?", models.RewardEventStatusProcessing, staleBefore)).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return 0, err
	}

	completed := 0
	for i := range events {
		event := &events[i]

		// Claim the event from the status we read it in. Losing the
		// claim means another worker already picked it up; the lease
		// guard stops two workers reclaiming the same stale row. The
		// claim itself bumps updated_at, renewing the lease.
		claim := d.DB.Model(&models.RewardEvent{}).
			Where("id = ? AND status = ?", event.ID, event.Status)
		if event.Status == models.RewardEventStatusProcessing {
			claim = claim.Where("updated_at < ?", staleBefore)
			log.Printf("[DISTRIBUTOR] Reclaiming stale event %s for %s (attempt %d)",
				event.ID, event.ReferredID, event.Attempts+1)
		}
		res := claim.Updates(map[string]interface{}{
			"status":   models.RewardEventStatusProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		})
		if res.Error != nil {
			return completed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		if err := d.Distribute(event.ReferredID, event.Amount); err != nil {
			d.markEventFailed(event, err)
			continue
		}

		now := time.Now()
		if err := d.DB.Model(&models.RewardEvent{}).
			Where("id = ?", event.ID).
			Updates(map[string]interface{}{
				"status":       models.RewardEventStatusDone,
				"processed_at": now,
			}).Error; err != nil {
			return completed, err
		}
		completed++
	}
	return completed, nil
}

// markEventFailed records the failure and either requeues the event or
// parks it once the attempt budget is spent.
func (d *RewardDistributor) markEventFailed(event *models.RewardEvent, cause error) {
	status := models.RewardEventStatusPending
	if event.Attempts+1 >= models.MaxRewardEventAttempts {
		status = models.RewardEventStatusFailed
	}
	msg := cause.Error()
	if err := d.DB.Model(&models.RewardEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": msg,
		}).Error; err != nil {
		log.Printf("[DISTRIBUTOR] Failed to mark event %s as %s: %v", event.ID, status, err)
		return
	}
	log.Printf("[DISTRIBUTOR] Event %s for %s failed (attempt %d): %v",
		event.ID, event.ReferredID, event.Attempts+1, cause)
}
