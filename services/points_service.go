package services

import (
	"errors"
	"time"

	"tap-referral-system/models"

	"gorm.io/gorm"
)

const (
	xpPerTap      = 1
	dailyBonusXP  = 100
	dailyClaimGap = 24 * time.Hour
)

// PointsService is the point-earning surface. Every gain it records also
// queues a reward event in the same transaction, so referral payouts can
// never be dropped between the gain and the distribution.
type PointsService struct {
	DB          *gorm.DB
	Distributor *RewardDistributor
}

func NewPointsService(db *gorm.DB, distributor *RewardDistributor) *PointsService {
	return &PointsService{DB: db, Distributor: distributor}
}

type TapResult struct {
	XPGained  int64 `json:"xp_gained"`
	TotalXP   int64 `json:"total_xp"`
	TotalTaps int64 `json:"total_taps"`
}

// RecordTap applies one tap's point gain and queues referral distribution.
func (s *PointsService) RecordTap(externalID string) (*TapResult, error) {
	var result *TapResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var p models.Participant
		if err := tx.Where("external_user_id = ?", externalID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}

		now := time.Now()
		if err := tx.Model(&models.Participant{}).
			Where("external_user_id = ?", externalID).
			Updates(map[string]interface{}{
				"xp":          gorm.Expr("xp + ?", xpPerTap),
				"total_taps":  gorm.Expr("total_taps + ?", 1),
				"last_tap_at": now,
			}).Error; err != nil {
			return err
		}

		if err := s.Distributor.EnqueueRewardEvent(tx, externalID, xpPerTap); err != nil {
			return err
		}

		result = &TapResult{
			XPGained:  xpPerTap,
			TotalXP:   p.XP + xpPerTap,
			TotalTaps: p.TotalTaps + 1,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type DailyClaimResult struct {
	XPGained      int64     `json:"xp_gained"`
	TotalXP       int64     `json:"total_xp"`
	NextClaimTime time.Time `json:"next_claim_time"`
}

// ClaimDailyBonus grants the fixed daily XP at most once per 24 hours.
func (s *PointsService) ClaimDailyBonus(externalID string) (*DailyClaimResult, error) {
	var result *DailyClaimResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var p models.Participant
		if err := tx.Where("external_user_id = ?", externalID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}

		now := time.Now()
		if p.LastDailyClaimAt != nil && now.Sub(*p.LastDailyClaimAt) < dailyClaimGap {
			return ErrDailyAlreadyClaimed
		}

		// Guard on the previous claim time so a concurrent claim cannot
		// land twice inside the same window.
		q := tx.Model(&models.Participant{}).
			Where("external_user_id = ?", externalID)
		if p.LastDailyClaimAt == nil {
			q = q.Where("last_daily_claim_at IS NULL")
		} else {
			q = q.Where("last_daily_claim_at = ?", *p.LastDailyClaimAt)
		}
		res := q.Updates(map[string]interface{}{
			"xp":                  gorm.Expr("xp + ?", dailyBonusXP),
			"last_daily_claim_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDailyAlreadyClaimed
		}

		if err := s.Distributor.EnqueueRewardEvent(tx, externalID, dailyBonusXP); err != nil {
			return err
		}

		result = &DailyClaimResult{
			XPGained:      dailyBonusXP,
			TotalXP:       p.XP + dailyBonusXP,
			NextClaimTime: now.Add(dailyClaimGap),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OnPointsEarned queues reward distribution for a point gain produced by
// another service. The points themselves are already credited upstream;
// only the referral shares flow from here.
func (s *PointsService) OnPointsEarned(externalID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Participant{}).
			Where("external_user_id = ?", externalID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrParticipantNotFound
		}
		return s.Distributor.EnqueueRewardEvent(tx, externalID, amount)
	})
}
