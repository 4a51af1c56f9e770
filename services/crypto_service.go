// services/crypto_service.go
package services

import (
	"errors"
	"log"

	"confidential-rps-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// CryptoService exposes the two client-side platform boundaries: producing a
// bound ciphertext for submission, and permission-gated decryption. The game
// protocol itself never calls these; they exist for clients that would
// otherwise run the platform SDK locally.
type CryptoService struct {
	DB     *gorm.DB
	Engine *FheEngine
	Perms  *PermissionService
}

func NewCryptoService(db *gorm.DB, engine *FheEngine, perms *PermissionService) *CryptoService {
	return &CryptoService{DB: db, Engine: engine, Perms: perms}
}

// Encrypt seals a plaintext value for the calling principal and returns the
// handle plus its binding proof. The fresh handle carries no permissions:
// it only becomes usable once submitted and verified.
func (s *CryptoService) Encrypt(c *fiber.Ctx) error {
	principal := c.Locals("principal").(string)

	var input struct {
		Value uint64 `json:"value"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	var handle, proof string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		handle, proof, err = s.Engine.EncryptInput(tx, input.Value, principal)
		return err
	})
	if err != nil {
		log.Printf("❌ [CRYPTO] encrypt failed for %s: %v", principal, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "encryption failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"handle": handle,
		"proof":  proof,
	})
}

// Decrypt reveals a ciphertext to an entitled principal. The permission
// ledger is the sole authority here: no grant, no plaintext.
func (s *CryptoService) Decrypt(c *fiber.Ctx) error {
	principal := c.Locals("principal").(string)

	var input struct {
		Handle string `json:"handle"`
	}
	if err := c.BodyParser(&input); err != nil || input.Handle == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "handle is required"})
	}

	value, err := s.decrypt(principal, input.Handle)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownHandle):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown ciphertext handle"})
		case errors.Is(err, ErrAccessDenied):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}
		log.Printf("❌ [CRYPTO] decrypt failed for %s on %s: %v", principal, input.Handle, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "decryption failed"})
	}

	return c.JSON(fiber.Map{
		"handle": input.Handle,
		"value":  value,
	})
}

func (s *CryptoService) decrypt(principal, handle string) (uint64, error) {
	// Unknown handles are a 404, not a 403: handles are random UUIDs, so
	// distinguishing "does not exist" from "not yours" enumerates nothing.
	var ct models.Ciphertext
	if err := s.DB.Select("handle").First(&ct, "handle = ?", handle).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUnknownHandle
		}
		return 0, err
	}

	allowed, err := s.Perms.IsAllowed(s.DB, handle, principal)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, ErrAccessDenied
	}
	return s.Engine.Reveal(s.DB, handle)
}
