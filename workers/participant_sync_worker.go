package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"tap-referral-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileChange matches the profile sync service's changed-user payload.
type ProfileChange struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Profiles []ProfileChange `json:"profiles"`
}

// ParticipantSyncWorker mirrors profile-service users into the local
// participants table so the ledger can resolve ancestors without a
// network hop. The upsert never touches referral columns — those are
// owned exclusively by this service.
type ParticipantSyncWorker struct {
	db           *gorm.DB
	baseURL      string
	endpointPath string
	serviceToken string
	interval     time.Duration
	httpClient   *http.Client
}

func NewParticipantSyncWorker(db *gorm.DB, baseURL, serviceToken string, interval time.Duration) *ParticipantSyncWorker {
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	return &ParticipantSyncWorker{
		db:           db,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		interval:     interval,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Run performs an initial backfill, then polls for incremental changes
// until the context is cancelled.
func (w *ParticipantSyncWorker) Run(ctx context.Context) {
	log.Println("[SYNC] Starting participant sync worker...")

	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		log.Printf("⚠️ [SYNC] Initial backfill failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SYNC] Participant sync worker stopped")
			return
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.lastSyncTime()); err != nil {
				log.Printf("❌ [SYNC] Sync batch failed: %v", err)
			}
		}
	}
}

// lastSyncTime finds the most recent update in the local mirror.
func (w *ParticipantSyncWorker) lastSyncTime() time.Time {
	var last time.Time
	err := w.db.Raw("SELECT MAX(updated_at) FROM participants WHERE deleted_at IS NULL").Scan(&last).Error
	if err != nil || last.IsZero() {
		return time.Unix(0, 0)
	}
	return last
}

func (w *ParticipantSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}

	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile sync request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("profile sync returned %d: %s", resp.StatusCode, string(body))
	}

	var changes profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&changes); err != nil {
		return fmt.Errorf("failed to decode profile sync response: %w", err)
	}

	if len(changes.Profiles) == 0 {
		return nil
	}

	var upserted, failed int
	for _, profile := range changes.Profiles {
		p := models.Participant{
			ID:             uuid.NewString(),
			ExternalUserID: profile.ExternalID,
			Username:       profile.Username,
		}
		if err := w.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
		}).Create(&p).Error; err != nil {
			failed++
			log.Printf("[SYNC] ⚠️ Failed to upsert participant %s: %v", profile.ExternalID, err)
		} else {
			upserted++
		}
	}

	log.Printf("[SYNC] ✅ Synced %d profile(s) (%d upserted, %d failed)", len(changes.Profiles), upserted, failed)
	return nil
}
