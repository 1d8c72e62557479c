package services

import (
	"testing"

	"tap-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database pinned to a single
// connection so concurrent transactions serialize instead of each pool
// connection seeing its own empty database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Participant{},
		&models.ReferralEdge{},
		&models.RewardEvent{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func createTestParticipant(t *testing.T, db *gorm.DB, externalID, username string) *models.Participant {
	t.Helper()

	p := &models.Participant{
		ID:             uuid.NewString(),
		ExternalUserID: externalID,
		Username:       username,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("failed to create participant %s: %v", externalID, err)
	}
	return p
}

// assignCode sets a participant's referral code directly, bypassing the
// random generator so scenarios can use fixed codes.
func assignCode(t *testing.T, db *gorm.DB, externalID, code string) {
	t.Helper()

	if err := db.Model(&models.Participant{}).
		Where("external_user_id = ?", externalID).
		Update("referral_code", code).Error; err != nil {
		t.Fatalf("failed to assign code %s to %s: %v", code, externalID, err)
	}
}

func getParticipant(t *testing.T, db *gorm.DB, externalID string) *models.Participant {
	t.Helper()

	var p models.Participant
	if err := db.Where("external_user_id = ?", externalID).First(&p).Error; err != nil {
		t.Fatalf("failed to load participant %s: %v", externalID, err)
	}
	return &p
}

func countEdgesFor(t *testing.T, db *gorm.DB, referredID string) int64 {
	t.Helper()

	var count int64
	if err := db.Model(&models.ReferralEdge{}).
		Where("referred_id = ?", referredID).
		Count(&count).Error; err != nil {
		t.Fatalf("failed to count edges for %s: %v", referredID, err)
	}
	return count
}

func newTestReferralService(db *gorm.DB) *ReferralService {
	return NewReferralService(db, "https://t.me/tap_game_bot", "https://play.example.com")
}
