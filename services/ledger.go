package services

import (
	"time"

	"tap-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// createChainEdges persists one edge per ancestor in the chain. It runs
// on the caller's transaction: either every edge commits or none do. The
// (referred_id, tier) unique index rejects a second binding attempt for
// the same applicant.
func createChainEdges(tx *gorm.DB, chain []ChainLink, referredID, code string) error {
	now := time.Now()
	for _, link := range chain {
		edge := models.ReferralEdge{
			ID:           uuid.NewString(),
			ReferrerID:   link.ReferrerID,
			ReferredID:   referredID,
			Tier:         link.Tier,
			CodeUsed:     code,
			Status:       models.EdgeStatusActive,
			DateReferred: now,
		}
		if err := tx.Create(&edge).Error; err != nil {
			return err
		}
	}
	return nil
}

// ActiveEdgesFor returns the active edges pointing at a referred
// participant, ordered by tier. At most one edge exists per tier.
func (s *ReferralService) ActiveEdgesFor(referredID string) ([]models.ReferralEdge, error) {
	var edges []models.ReferralEdge
	err := s.DB.Where("referred_id = ? AND status = ?", referredID, models.EdgeStatusActive).
		Order("tier ASC").
		Find(&edges).Error
	return edges, err
}

// ActiveEdgesFrom returns active edges where the participant is the
// referrer, newest first. tier == 0 means all tiers.
func (s *ReferralService) ActiveEdgesFrom(referrerID string, tier int) ([]models.ReferralEdge, error) {
	q := s.DB.Where("referrer_id = ? AND status = ?", referrerID, models.EdgeStatusActive)
	if tier > 0 {
		q = q.Where("tier = ?", tier)
	}
	var edges []models.ReferralEdge
	err := q.Order("date_referred DESC").Find(&edges).Error
	return edges, err
}

// TierAggregate is one row of the per-tier breakdown.
type TierAggregate struct {
	Tier         int   `json:"tier"`
	Count        int64 `json:"count"`
	TotalRewards int64 `json:"total_rewards"`
}

// AggregateByTier groups a referrer's active edges by tier, returning
// edge counts and reward sums. Used by the stats endpoints, not by the
// reward path.
func (s *ReferralService) AggregateByTier(referrerID string) ([]TierAggregate, error) {
	var rows []TierAggregate
	err := s.DB.Model(&models.ReferralEdge{}).
		Select("tier, COUNT(*) AS count, COALESCE(SUM(total_rewards_distributed), 0) AS total_rewards").
		Where("referrer_id = ? AND status = ?", referrerID, models.EdgeStatusActive).
		Group("tier").
		Order("tier ASC").
		Scan(&rows).Error
	return rows, err
}

// ExpireOrphanedEdges marks active edges whose referred participant no
// longer exists in the mirror. Run periodically from the scheduler.
func (s *ReferralService) ExpireOrphanedEdges() (int64, error) {
	res := s.DB.Model(&models.ReferralEdge{}).
		Where("status = ?", models.EdgeStatusActive).
		Where("referred_id NOT IN (?)", s.DB.Model(&models.Participant{}).Select("external_user_id")).
		Update("status", models.EdgeStatusExpired)
	return res.RowsAffected, res.Error
}
