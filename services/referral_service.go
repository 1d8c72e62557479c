package services

import (
	"errors"
	"fmt"
	"log"

	"tap-referral-system/models"
	"tap-referral-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// codeGenerationAttempts bounds the uniqueness retry loop so code
	// minting can fail instead of spinning.
	codeGenerationAttempts = 5

	// applyRetryAttempts bounds retries of the binding transaction on
	// serialization conflicts.
	applyRetryAttempts = 3
)

type ReferralService struct {
	DB          *gorm.DB
	BotLinkBase string
	WebLinkBase string
}

func NewReferralService(db *gorm.DB, botLinkBase, webLinkBase string) *ReferralService {
	return &ReferralService{DB: db, BotLinkBase: botLinkBase, WebLinkBase: webLinkBase}
}

// EnsureParticipant returns the participant mirror for an external user,
// creating it on first sight (first authentication).
func (s *ReferralService) EnsureParticipant(externalID, username string) (*models.Participant, error) {
	var p models.Participant
	err := s.DB.Where("external_user_id = ?", externalID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = models.Participant{
			ID:             uuid.NewString(),
			ExternalUserID: externalID,
			Username:       username,
		}
		if err := s.DB.Create(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CodeGrant is the result of a code request: the code plus the links a
// client can share.
type CodeGrant struct {
	ReferralCode string `json:"referral_code"`
	ReferralLink string `json:"referral_link"`
	ShareLink    string `json:"share_link"`
}

// RequestOrGenerateCode returns the participant's referral code, minting
// one on first request. Idempotent: an existing code is returned as-is.
func (s *ReferralService) RequestOrGenerateCode(externalID string) (*CodeGrant, error) {
	var grant *CodeGrant
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var p models.Participant
		if err := tx.Where("external_user_id = ?", externalID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}

		if p.ReferralCode != nil {
			grant = s.codeGrant(p.Username, *p.ReferralCode)
			return nil
		}

		code, err := mintUniqueCode(tx)
		if err != nil {
			return err
		}

		// Guarded write: a concurrent request that already assigned a
		// code wins, and the unique index backstops the race on the code
		// value itself.
		res := tx.Model(&models.Participant{}).
			Where("external_user_id = ? AND referral_code IS NULL", externalID).
			Update("referral_code", code)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var again models.Participant
			if err := tx.Where("external_user_id = ?", externalID).First(&again).Error; err != nil {
				return err
			}
			if again.ReferralCode == nil {
				return ErrParticipantNotFound
			}
			grant = s.codeGrant(again.Username, *again.ReferralCode)
			return nil
		}

		log.Printf("[REFERRAL] Generated code %s for participant %s", code, externalID)
		grant = s.codeGrant(p.Username, code)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *ReferralService) codeGrant(username, code string) *CodeGrant {
	return &CodeGrant{
		ReferralCode: code,
		ReferralLink: utils.BuildReferralLink(s.BotLinkBase, code),
		ShareLink:    utils.BuildVanityShareLink(s.WebLinkBase, username, code),
	}
}

// mintUniqueCode draws random codes until one is unused, within a fixed
// attempt budget.
func mintUniqueCode(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < codeGenerationAttempts; attempt++ {
		code, err := utils.GenerateReferralCode()
		if err != nil {
			return "", fmt.Errorf("failed to draw referral code: %w", err)
		}
		var count int64
		if err := tx.Model(&models.Participant{}).
			Where("referral_code = ?", code).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", ErrCodeGenerationExhausted
}

// ApplyReferralCode binds the applicant to the owner of the supplied
// code. The binding is all-or-nothing: the chain edges and the
// referred_by pointer commit together or not at all. Transient conflicts
// are retried a bounded number of times.
func (s *ReferralService) ApplyReferralCode(externalID, code string) error {
	code = utils.NormalizeReferralCode(code)
	if !utils.IsValidReferralCode(code) {
		return ErrMalformedCode
	}

	var lastErr error
	for attempt := 0; attempt < applyRetryAttempts; attempt++ {
		lastErr = s.applyOnce(externalID, code)
		if !isRetryableTxError(lastErr) {
			return lastErr
		}
		log.Printf("[REFERRAL] Apply attempt %d for %s aborted, retrying: %v", attempt+1, externalID, lastErr)
	}
	return fmt.Errorf("%w: %v", ErrTransactionAborted, lastErr)
}

func (s *ReferralService) applyOnce(externalID, code string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var applicant models.Participant
		if err := tx.Where("external_user_id = ?", externalID).First(&applicant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParticipantNotFound
			}
			return err
		}
		if applicant.ReferredByID != nil {
			return ErrAlreadyBound
		}

		var referrer models.Participant
		if err := tx.Where("referral_code = ?", code).First(&referrer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return err
		}
		if referrer.ExternalUserID == applicant.ExternalUserID {
			return ErrSelfReferral
		}

		chain, err := buildReferralChain(tx, referrer.ExternalUserID, applicant.ExternalUserID, models.MaxReferralTier)
		if err != nil {
			return err
		}

		// A duplicate key on the (referred_id, tier) index means a
		// concurrent apply already wrote this applicant's edges. Under
		// READ COMMITTED the loser reads referred_by_id as NULL before
		// the winner commits, so the index is where the race surfaces.
		if err := createChainEdges(tx, chain, applicant.ExternalUserID, code); err != nil {
			if isDuplicateKeyError(err) {
				return ErrAlreadyBound
			}
			return err
		}

		// Compare-and-set: the binding lands only if nobody bound the
		// applicant between our read and this write.
		res := tx.Model(&models.Participant{}).
			Where("external_user_id = ? AND referred_by_id IS NULL", applicant.ExternalUserID).
			Update("referred_by_id", referrer.ExternalUserID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyBound
		}

		log.Printf("[REFERRAL] Participant %s bound to %s via code %s (%d edge(s))",
			externalID, referrer.ExternalUserID, code, len(chain))
		return nil
	})
}
