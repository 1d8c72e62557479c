package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tap-referral-system/models"
	"tap-referral-system/utils"

	"github.com/go-co-op/gocron/v2"
)

// StartLedgerScheduler runs the periodic ledger maintenance jobs: a
// nightly archive of per-referrer aggregates to R2 and an hourly sweep
// expiring edges whose referred participant vanished upstream.
func (s *ReferralService) StartLedgerScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			if err := s.ArchiveLedgerSnapshot(context.Background()); err != nil {
				log.Printf("❌ [ARCHIVER] Snapshot upload failed: %v", err)
			}
		}),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			expired, err := s.ExpireOrphanedEdges()
			if err != nil {
				log.Printf("❌ [ARCHIVER] Edge expiry sweep failed: %v", err)
				return
			}
			if expired > 0 {
				log.Printf("[ARCHIVER] Expired %d orphaned edge(s)", expired)
			}
		}),
	)
}

// LedgerSnapshotRow is one aggregate line of the archived snapshot.
type LedgerSnapshotRow struct {
	ReferrerID   string `json:"referrer_id"`
	Tier         int    `json:"tier"`
	EdgeCount    int64  `json:"edge_count"`
	TotalRewards int64  `json:"total_rewards"`
}

// ArchiveLedgerSnapshot aggregates the active ledger by referrer and
// tier and uploads the result as a dated JSON object.
func (s *ReferralService) ArchiveLedgerSnapshot(ctx context.Context) error {
	var rows []LedgerSnapshotRow
	if err := s.DB.Model(&models.ReferralEdge{}).
		Select("referrer_id, tier, COUNT(*) AS edge_count, COALESCE(SUM(total_rewards_distributed), 0) AS total_rewards").
		Where("status = ?", models.EdgeStatusActive).
		Group("referrer_id, tier").
		Order("referrer_id, tier").
		Scan(&rows).Error; err != nil {
		return fmt.Errorf("failed to aggregate ledger: %w", err)
	}

	payload, err := json.Marshal(struct {
		GeneratedAt time.Time           `json:"generated_at"`
		Rows        []LedgerSnapshotRow `json:"rows"`
	}{GeneratedAt: time.Now().UTC(), Rows: rows})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := fmt.Sprintf("ledger-snapshots/%s.json", time.Now().UTC().Format("2006-01-02"))
	url, err := utils.UploadBytesToR2(ctx, key, "application/json", payload)
	if err != nil {
		return err
	}

	log.Printf("✅ [ARCHIVER] Uploaded ledger snapshot (%d rows) to %s", len(rows), url)
	return nil
}
