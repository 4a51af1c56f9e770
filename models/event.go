// models/event.go
package models

import "time"

// Game event types, written in the same transaction as the state change
// they describe. The SSE stream polls this journal so UIs don't have to.
const (
	EventGameCreated   = "game_created"
	EventMoveSubmitted = "move_submitted"
	EventGameResolved  = "game_resolved"
)

type GameEvent struct {
	ID     string `json:"id" gorm:"primaryKey"`
	GameID uint64 `json:"game_id" gorm:"index;not null"`
	Type   string `json:"type" gorm:"type:varchar(32);not null"`
	// Actor is the principal that caused the event (empty for resolution,
	// which the engine performs on its own behalf).
	Actor string `json:"actor"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
