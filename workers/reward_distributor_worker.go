package workers

import (
	"context"
	"log"
	"time"

	"tap-referral-system/services"
)

// RewardDistributorWorker drains the reward event outbox. Events that
// fail are requeued by the distributor until their attempt budget runs
// out, so a crashed poll cycle never loses a payout.
type RewardDistributorWorker struct {
	distributor *services.RewardDistributor
	interval    time.Duration
	batchSize   int
}

func NewRewardDistributorWorker(distributor *services.RewardDistributor, interval time.Duration, batchSize int) *RewardDistributorWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RewardDistributorWorker{
		distributor: distributor,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Run polls the outbox until the context is cancelled.
func (w *RewardDistributorWorker) Run(ctx context.Context) {
	log.Println("[DISTRIBUTOR] Starting reward distributor worker...")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[DISTRIBUTOR] Reward distributor worker stopped")
			return
		case <-ticker.C:
			completed, err := w.distributor.ProcessPending(w.batchSize)
			if err != nil {
				log.Printf("❌ [DISTRIBUTOR] Poll failed: %v", err)
				continue
			}
			if completed > 0 {
				log.Printf("✅ [DISTRIBUTOR] Applied %d reward event(s)", completed)
			}
		}
	}
}
