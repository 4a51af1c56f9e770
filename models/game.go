// models/game.go
package models

import (
	"time"
)

// Game status lifecycle, which only ever advances and never regresses:
// created → player1_submitted → resolved
const (
	StatusCreated          = "created"
	StatusPlayer1Submitted = "player1_submitted"
	StatusResolved         = "resolved"
)

// Plaintext move codes. The service never sees these for a live game;
// they exist only inside the sealed ciphertext store and on the client side.
const (
	MoveRock     uint64 = 0
	MovePaper    uint64 = 1
	MoveScissors uint64 = 2
)

// Result codes held (encrypted) in a game's result ciphertext.
const (
	ResultDraw        uint64 = 0
	ResultPlayer1Wins uint64 = 1
	ResultPlayer2Wins uint64 = 2
)

type Game struct {
	ID uint64 `json:"id" gorm:"primaryKey;autoIncrement:false"`

	// Player1 is set at creation and never changes. An empty Player1 is the
	// existence sentinel: no stored game ever has one.
	Player1 string `json:"player1" gorm:"index;not null"`
	// Player2 stays empty until the second submission resolves the game.
	Player2 string `json:"player2"`

	// 🔒 Opaque ciphertext handles; plaintext is never stored on the game.
	// All three start as fresh trivial encryptions of zero.
	Move1Handle  string `json:"move1_handle"`
	Move2Handle  string `json:"move2_handle"`
	ResultHandle string `json:"result_handle"`

	Status     string     `json:"status" gorm:"type:varchar(24);default:'created'"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"` // nil until resolved

	// Archive worker bookkeeping (resolved games get exported once)
	Archived bool `json:"archived" gorm:"default:false;index"`
}

// Counter backs sequential game id allocation. A single row named
// CounterGameID holds the id the next createGame call will assign.
// Ids start at 1 and are never reused, even across failed requests.
type Counter struct {
	Name string `json:"name" gorm:"primaryKey"`
	Next uint64 `json:"next" gorm:"not null;default:1"`
}

const CounterGameID = "game_id"
