package services

import (
	"errors"
	"time"

	"tap-referral-system/models"
	"tap-referral-system/utils"

	"gorm.io/gorm"
)

// DirectReferralSummary describes one tier-1 referral in the stats view.
type DirectReferralSummary struct {
	ExternalUserID   string     `json:"external_user_id"`
	Username         string     `json:"username"`
	RewardsGenerated int64      `json:"rewards_generated"`
	JoinedAt         time.Time  `json:"joined_at"`
	LastActiveAt     *time.Time `json:"last_active_at,omitempty"`
}

// ReferralStats is the outgoing view: what a participant's code has
// produced across the whole chain below them.
type ReferralStats struct {
	ReferralCode    *string                 `json:"referral_code"`
	ReferralLink    *string                 `json:"referral_link,omitempty"`
	ShareLink       *string                 `json:"share_link,omitempty"`
	TotalReferrals  int64                   `json:"total_referrals"`
	TotalEarnings   int64                   `json:"total_earnings"`
	TierBreakdown   []TierAggregate         `json:"tier_breakdown"`
	DirectReferrals []DirectReferralSummary `json:"direct_referrals"`
}

func (s *ReferralService) GetReferralStats(externalID string) (*ReferralStats, error) {
	var p models.Participant
	if err := s.DB.Where("external_user_id = ?", externalID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}

	stats := &ReferralStats{
		ReferralCode:  p.ReferralCode,
		TotalEarnings: p.TotalReferralXP,
	}
	if p.ReferralCode != nil {
		link := utils.BuildReferralLink(s.BotLinkBase, *p.ReferralCode)
		share := utils.BuildVanityShareLink(s.WebLinkBase, p.Username, *p.ReferralCode)
		stats.ReferralLink = &link
		stats.ShareLink = &share
	}

	tiers, err := s.AggregateByTier(externalID)
	if err != nil {
		return nil, err
	}
	stats.TierBreakdown = tiers

	direct, err := s.ActiveEdgesFrom(externalID, 1)
	if err != nil {
		return nil, err
	}
	stats.TotalReferrals = int64(len(direct))

	for _, edge := range direct {
		summary := DirectReferralSummary{
			ExternalUserID:   edge.ReferredID,
			RewardsGenerated: edge.TotalRewardsDistributed,
			JoinedAt:         edge.DateReferred,
		}
		var referred models.Participant
		if err := s.DB.Where("external_user_id = ?", edge.ReferredID).First(&referred).Error; err == nil {
			summary.Username = referred.Username
			summary.LastActiveAt = referred.LastTapAt
		}
		stats.DirectReferrals = append(stats.DirectReferrals, summary)
	}

	return stats, nil
}

// IncomingReward is one ancestor's share of the participant's activity.
type IncomingReward struct {
	ReferrerID       string     `json:"referrer_id"`
	ReferrerUsername string     `json:"referrer_username,omitempty"`
	Tier             int        `json:"tier"`
	TotalRewards     int64      `json:"total_rewards"`
	StartedAt        time.Time  `json:"started_at"`
	LastRewardAt     *time.Time `json:"last_reward_at,omitempty"`
}

// IncomingRewards is the incoming view: which ancestors earn from this
// participant and how much has flowed to each so far.
type IncomingRewards struct {
	Rewards       []IncomingReward `json:"rewards"`
	TotalReceived int64            `json:"total_received"`
}

func (s *ReferralService) GetIncomingRewards(externalID string) (*IncomingRewards, error) {
	edges, err := s.ActiveEdgesFor(externalID)
	if err != nil {
		return nil, err
	}

	result := &IncomingRewards{}
	for _, edge := range edges {
		reward := IncomingReward{
			ReferrerID:   edge.ReferrerID,
			Tier:         edge.Tier,
			TotalRewards: edge.TotalRewardsDistributed,
			StartedAt:    edge.DateReferred,
			LastRewardAt: edge.LastRewardAt,
		}
		var referrer models.Participant
		if err := s.DB.Where("external_user_id = ?", edge.ReferrerID).First(&referrer).Error; err == nil {
			reward.ReferrerUsername = referrer.Username
		}
		result.Rewards = append(result.Rewards, reward)
		result.TotalReceived += edge.TotalRewardsDistributed
	}

	return result, nil
}
