// services/sse_event_service.go
package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"confidential-rps-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// EventService streams the game event journal over SSE so UIs can follow
// game_created / move_submitted / game_resolved without polling the API.
type EventService struct {
	DB *gorm.DB
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{DB: db}
}

// eventCursor marks the last delivered row. Timestamps alone are not unique
// (second precision under load), so the row id breaks ties and pagination
// never skips an event that shares a timestamp with the previous batch.
type eventCursor struct {
	at time.Time
	id string
}

// latestCursor positions a new subscriber after the newest existing event.
func (s *EventService) latestCursor() (eventCursor, error) {
	var latest models.GameEvent
	err := s.DB.Order("created_at DESC, id DESC").First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return eventCursor{}, nil
		}
		return eventCursor{}, err
	}
	return eventCursor{at: latest.CreatedAt, id: latest.ID}, nil
}

// eventsAfter returns journal rows strictly after the cursor in
// (created_at, id) order, optionally filtered to one game.
func (s *EventService) eventsAfter(cur eventCursor, gameFilter uint64) ([]models.GameEvent, error) {
	query := s.DB.
		Where("created_at > ? OR (created_at = ? AND id > ?)", cur.at, cur.at, cur.id).
		Order("created_at ASC, id ASC")
	if gameFilter != 0 {
		query = query.Where("game_id = ?", gameFilter)
	}

	var events []models.GameEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// StreamGameEventsSSE streams journal rows newer than the connection time,
// optionally filtered to one game via ?game_id=N.
func (s *EventService) StreamGameEventsSSE(c *fiber.Ctx) error {
	principal := c.Locals("principal").(string)

	var gameFilter uint64
	if raw := c.Query("game_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid game_id"})
		}
		gameFilter = id
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	log.Printf("📡 [SSE] %s subscribed (game filter: %d)", principal, gameFilter)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		// Subscribers only see what happens after they connect.
		cursor, err := s.latestCursor()
		if err != nil {
			log.Printf("SSE init error for %s: %v", principal, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				events, err := s.eventsAfter(cursor, gameFilter)
				if err != nil {
					log.Printf("SSE query error for %s: %v", principal, err)
					continue
				}
				if len(events) == 0 {
					continue
				}

				last := events[len(events)-1]
				cursor = eventCursor{at: last.CreatedAt, id: last.ID}

				for _, ev := range events {
					payload, _ := json.Marshal(ev)
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
				}

				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}
