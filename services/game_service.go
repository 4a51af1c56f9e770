// services/game_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"confidential-rps-service/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lockForUpdate adds a pessimistic row lock to the query so concurrent
// transactions serialize on the loaded rows. sqlite has no FOR UPDATE
// syntax; its single writer already serializes, so the clause is skipped.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GameService owns the game record store and the move state machine. Every
// mutating operation runs inside one DB transaction, so a failed call leaves
// no partial state: no half-created game, no half-recorded move.
type GameService struct {
	DB     *gorm.DB
	Engine *FheEngine
	Perms  *PermissionService
}

func NewGameService(db *gorm.DB, engine *FheEngine, perms *PermissionService) *GameService {
	return &GameService{DB: db, Engine: engine, Perms: perms}
}

// ===== HTTP handlers =====

// CreateGame opens a new game with the caller as player1.
func (s *GameService) CreateGame(c *fiber.Ctx) error {
	principal := c.Locals("principal").(string)

	game, err := s.createGame(principal)
	if err != nil {
		log.Printf("❌ [GAME] create failed for %s: %v", principal, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create game"})
	}

	return c.Status(fiber.StatusCreated).JSON(game)
}

// GetGame returns the full record: plaintext metadata plus opaque handles.
func (s *GameService) GetGame(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid game id"})
	}

	game, err := s.getGame(id)
	if err != nil {
		if errors.Is(err, ErrGameNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "game not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(game)
}

// GetNextID returns the id the next created game will get. There is no
// listing endpoint; clients discover the latest game as next_id - 1.
func (s *GameService) GetNextID(c *fiber.Ctx) error {
	next, err := s.nextID()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{"next_id": next})
}

// SubmitMove accepts an externally encrypted move plus its binding proof.
func (s *GameService) SubmitMove(c *fiber.Ctx) error {
	principal := c.Locals("principal").(string)

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid game id"})
	}

	var input struct {
		Handle string `json:"handle"`
		Proof  string `json:"proof"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if input.Handle == "" || input.Proof == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "handle and proof are required"})
	}

	game, err := s.submitMove(principal, id, input.Handle, input.Proof)
	if err != nil {
		switch {
		case errors.Is(err, ErrGameNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "game not found"})
		case errors.Is(err, ErrAlreadyResolved):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "game already resolved"})
		case errors.Is(err, ErrOutOfOrder):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrInvalidProof):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid input proof"})
		}
		log.Printf("❌ [GAME] submit failed for game %d by %s: %v", id, principal, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to submit move"})
	}

	return c.JSON(game)
}

// ===== Core operations =====

// createGame allocates the next sequential id and stores a fresh game. The
// three ciphertext slots start as independent trivial encryptions of zero so
// a reader can never distinguish "no move yet" from an actual ciphertext.
func (s *GameService) createGame(principal string) (*models.Game, error) {
	var game models.Game

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		id, err := allocateGameID(tx)
		if err != nil {
			return err
		}

		zero1, err := s.Engine.TrivialEncrypt(tx, 0)
		if err != nil {
			return err
		}
		zero2, err := s.Engine.TrivialEncrypt(tx, 0)
		if err != nil {
			return err
		}
		zeroR, err := s.Engine.TrivialEncrypt(tx, 0)
		if err != nil {
			return err
		}

		game = models.Game{
			ID:           id,
			Player1:      principal,
			Move1Handle:  zero1,
			Move2Handle:  zero2,
			ResultHandle: zeroR,
			Status:       models.StatusCreated,
			CreatedAt:    time.Now(),
		}
		if err := tx.Create(&game).Error; err != nil {
			return err
		}

		return appendEvent(tx, game.ID, models.EventGameCreated, principal)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🎮 [GAME] game %d created by %s", game.ID, principal)
	return &game, nil
}

// allocateGameID reads and advances the single-row counter. Ids are
// sequential from 1 and never reused; the surrounding transaction rolls the
// increment back together with everything else on failure. The counter row
// stays locked until commit, so two concurrent creates can never read the
// same value and collide on the game primary key.
func allocateGameID(tx *gorm.DB) (uint64, error) {
	var ctr models.Counter
	err := lockForUpdate(tx).Where(models.Counter{Name: models.CounterGameID}).
		Attrs(models.Counter{Next: 1}).
		FirstOrCreate(&ctr).Error
	if err != nil {
		return 0, err
	}

	id := ctr.Next
	ctr.Next++
	if err := tx.Save(&ctr).Error; err != nil {
		return 0, err
	}
	return id, nil
}

func (s *GameService) getGame(id uint64) (*models.Game, error) {
	var game models.Game
	if err := s.DB.First(&game, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	// Player1 is the existence sentinel; an empty one means the row is not a
	// real game (cannot happen through createGame, but the read path still
	// honors the sentinel).
	if game.Player1 == "" {
		return nil, ErrGameNotFound
	}
	return &game, nil
}

func (s *GameService) nextID() (uint64, error) {
	var ctr models.Counter
	err := s.DB.First(&ctr, "name = ?", models.CounterGameID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 1, nil
		}
		return 0, err
	}
	return ctr.Next, nil
}

// submitMove drives the state machine. The caller's role is derived, never
// declared: the creator is player1, anyone else is (or becomes) player2.
// The second submission resolves the game synchronously before returning.
func (s *GameService) submitMove(principal string, gameID uint64, handle, proof string) (*models.Game, error) {
	var game models.Game

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// The row lock is held until commit; the status checks below run
		// under it, so two racing submissions serialize and the loser sees
		// the winner's committed status instead of a stale one.
		if err := lockForUpdate(tx).First(&game, "id = ?", gameID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGameNotFound
			}
			return err
		}
		if game.Status == models.StatusResolved {
			return ErrAlreadyResolved
		}

		isPlayer1 := principal == game.Player1
		if isPlayer1 && game.Status != models.StatusCreated {
			return fmt.Errorf("%w: player1 already moved", ErrOutOfOrder)
		}
		if !isPlayer1 && game.Status != models.StatusPlayer1Submitted {
			return fmt.Errorf("%w: game awaiting player1", ErrOutOfOrder)
		}

		if err := s.Engine.VerifyInput(tx, handle, proof, principal); err != nil {
			return err
		}

		// Branchless clamp into {0,1,2}: the raw value is never range-checked
		// or stored, only its modulo-3 image is.
		normalized, err := s.Engine.Rem3(tx, handle)
		if err != nil {
			return err
		}
		if err := s.Perms.Allow(tx, normalized, principal); err != nil {
			return err
		}

		if isPlayer1 {
			game.Move1Handle = normalized
			game.Status = models.StatusPlayer1Submitted
		} else {
			game.Player2 = principal
			game.Move2Handle = normalized
		}
		if err := tx.Save(&game).Error; err != nil {
			return err
		}

		if err := appendEvent(tx, game.ID, models.EventMoveSubmitted, principal); err != nil {
			return err
		}

		if !isPlayer1 {
			return s.resolveGame(tx, &game)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🎮 [GAME] move submitted for game %d by %s (status: %s)", game.ID, principal, game.Status)
	return &game, nil
}

// resolveGame is the blind referee: a fixed gate circuit over the two move
// ciphertexts. Nothing here observes a move or the outcome in plaintext; the
// result only exists as a new ciphertext both players may decrypt.
func (s *GameService) resolveGame(tx *gorm.DB, game *models.Game) error {
	rock, err := s.Engine.TrivialEncrypt(tx, models.MoveRock)
	if err != nil {
		return err
	}
	paper, err := s.Engine.TrivialEncrypt(tx, models.MovePaper)
	if err != nil {
		return err
	}
	scissors, err := s.Engine.TrivialEncrypt(tx, models.MoveScissors)
	if err != nil {
		return err
	}

	m1, m2 := game.Move1Handle, game.Move2Handle

	isDraw, err := s.Engine.Eq(tx, m1, m2)
	if err != nil {
		return err
	}

	// The three disjoint win conditions for player1. With both moves clamped
	// into {0,1,2}, exactly one of draw / p1-wins / p2-wins holds.
	winRock, err := s.pairEq(tx, m1, rock, m2, scissors)
	if err != nil {
		return err
	}
	winPaper, err := s.pairEq(tx, m1, paper, m2, rock)
	if err != nil {
		return err
	}
	winScissors, err := s.pairEq(tx, m1, scissors, m2, paper)
	if err != nil {
		return err
	}

	anyWin, err := s.Engine.Or(tx, winRock, winPaper)
	if err != nil {
		return err
	}
	player1Wins, err := s.Engine.Or(tx, anyWin, winScissors)
	if err != nil {
		return err
	}

	one, err := s.Engine.TrivialEncrypt(tx, models.ResultPlayer1Wins)
	if err != nil {
		return err
	}
	two, err := s.Engine.TrivialEncrypt(tx, models.ResultPlayer2Wins)
	if err != nil {
		return err
	}
	zero, err := s.Engine.TrivialEncrypt(tx, models.ResultDraw)
	if err != nil {
		return err
	}

	ifNotDraw, err := s.Engine.Select(tx, player1Wins, one, two)
	if err != nil {
		return err
	}
	result, err := s.Engine.Select(tx, isDraw, zero, ifNotDraw)
	if err != nil {
		return err
	}

	// Both players may decrypt the result. No new grants on the moves: each
	// player keeps access to their own move only. That is the privacy
	// boundary of the whole design.
	if err := s.Perms.Allow(tx, result, game.Player1); err != nil {
		return err
	}
	if err := s.Perms.Allow(tx, result, game.Player2); err != nil {
		return err
	}

	now := time.Now()
	game.ResultHandle = result
	game.Status = models.StatusResolved
	game.ResolvedAt = &now
	if err := tx.Save(game).Error; err != nil {
		return err
	}

	return appendEvent(tx, game.ID, models.EventGameResolved, "")
}

// pairEq computes Eq(a, wantA) AND Eq(b, wantB).
func (s *GameService) pairEq(tx *gorm.DB, a, wantA, b, wantB string) (string, error) {
	ea, err := s.Engine.Eq(tx, a, wantA)
	if err != nil {
		return "", err
	}
	eb, err := s.Engine.Eq(tx, b, wantB)
	if err != nil {
		return "", err
	}
	return s.Engine.And(tx, ea, eb)
}

func appendEvent(tx *gorm.DB, gameID uint64, eventType, actor string) error {
	event := models.GameEvent{
		ID:        uuid.NewString(),
		GameID:    gameID,
		Type:      eventType,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	return tx.Create(&event).Error
}
