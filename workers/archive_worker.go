// workers/archive_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"confidential-rps-service/models"
	"confidential-rps-service/utils"

	"gorm.io/gorm"
)

// ArchiveWorker exports resolved games to R2 as public-metadata JSON. Only
// plaintext metadata and opaque handles leave the database; sealed payloads
// never do.
type ArchiveWorker struct {
	DB *gorm.DB
}

func NewArchiveWorker(db *gorm.DB) *ArchiveWorker {
	return &ArchiveWorker{DB: db}
}

// archivedGame is the exported shape. Handles are included: without a ledger
// grant they are just identifiers.
type archivedGame struct {
	ID           uint64     `json:"id"`
	Player1      string     `json:"player1"`
	Player2      string     `json:"player2"`
	Move1Handle  string     `json:"move1_handle"`
	Move2Handle  string     `json:"move2_handle"`
	ResultHandle string     `json:"result_handle"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at"`
}

// Run polls for unarchived resolved games until the context is cancelled.
func (w *ArchiveWorker) Run(ctx context.Context, interval time.Duration) {
	log.Printf("📦 [ARCHIVE] worker started (every %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("📦 [ARCHIVE] worker stopped")
			return
		case <-ticker.C:
			if err := w.archiveOnce(ctx); err != nil {
				log.Printf("[ARCHIVE] pass failed: %v", err)
			}
		}
	}
}

func (w *ArchiveWorker) archiveOnce(ctx context.Context) error {
	var games []models.Game
	err := w.DB.
		Where("status = ? AND archived = ?", models.StatusResolved, false).
		Order("resolved_at ASC").
		Limit(50).
		Find(&games).Error
	if err != nil {
		return fmt.Errorf("failed to query unarchived games: %w", err)
	}

	for _, g := range games {
		record := archivedGame{
			ID:           g.ID,
			Player1:      g.Player1,
			Player2:      g.Player2,
			Move1Handle:  g.Move1Handle,
			Move2Handle:  g.Move2Handle,
			ResultHandle: g.ResultHandle,
			Status:       g.Status,
			CreatedAt:    g.CreatedAt,
			ResolvedAt:   g.ResolvedAt,
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal game %d: %w", g.ID, err)
		}

		key := fmt.Sprintf("games/%d.json", g.ID)
		if err := utils.UploadBytesToR2(ctx, key, payload, "application/json"); err != nil {
			// Leave the game unarchived; next pass retries it.
			log.Printf("[ARCHIVE] upload failed for game %d: %v", g.ID, err)
			continue
		}

		if err := w.DB.Model(&models.Game{}).Where("id = ?", g.ID).Update("archived", true).Error; err != nil {
			return fmt.Errorf("failed to mark game %d archived: %w", g.ID, err)
		}
		log.Printf("✅ [ARCHIVE] game %d exported to %s", g.ID, key)
	}

	return nil
}
