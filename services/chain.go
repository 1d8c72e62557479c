package services

import (
	"errors"

	"tap-referral-system/models"

	"gorm.io/gorm"
)

// ChainLink is one ancestor in a referral chain. Tier 1 is the direct
// referrer.
type ChainLink struct {
	ReferrerID string
	Tier       int
}

// buildReferralChain walks referred_by_id upward from the candidate
// referrer, collecting at most maxTier ancestors. The walk runs on the
// caller's transaction handle so the ancestry cannot shift between the
// read and the writes that follow it.
//
// A visited set catches cycles; hitting the applicant's own id at any
// tier is a self-referral. The walk stops cleanly when an ancestor has no
// referrer or is missing from the mirror.
func buildReferralChain(tx *gorm.DB, referrerID, applicantID string, maxTier int) ([]ChainLink, error) {
	chain := make([]ChainLink, 0, maxTier)
	visited := make(map[string]struct{}, maxTier+1)

	currentID := referrerID
	for tier := 1; currentID != "" && tier <= maxTier; tier++ {
		if _, seen := visited[currentID]; seen {
			return nil, ErrCycleDetected
		}
		visited[currentID] = struct{}{}

		if currentID == applicantID {
			return nil, ErrSelfReferral
		}

		var ancestor models.Participant
		err := tx.Select("external_user_id", "referred_by_id").
			Where("external_user_id = ?", currentID).
			First(&ancestor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}

		chain = append(chain, ChainLink{ReferrerID: currentID, Tier: tier})

		if ancestor.ReferredByID == nil {
			break
		}
		currentID = *ancestor.ReferredByID
	}

	return chain, nil
}
