// services/scheduler.go
package services

import (
	"log"
	"time"

	"confidential-rps-service/models"

	"github.com/go-co-op/gocron/v2"
)

// StartDigestScheduler logs a periodic count of games per status. Strictly
// read-only: an open game waiting for a second player never expires and is
// never touched here.
func (s *GameService) StartDigestScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			statuses := []string{
				models.StatusCreated,
				models.StatusPlayer1Submitted,
				models.StatusResolved,
			}
			for _, status := range statuses {
				var count int64
				if err := s.DB.Model(&models.Game{}).Where("status = ?", status).Count(&count).Error; err != nil {
					log.Printf("[Digest] DB error: %v", err)
					return
				}
				log.Printf("[Digest] %s games: %d", status, count)
			}
		}),
	)
}
