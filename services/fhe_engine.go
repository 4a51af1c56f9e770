// services/fhe_engine.go
package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"confidential-rps-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FheEngine is the service-side binding to the encrypted-compute platform.
// Everything above it works purely on opaque handles: the engine is the only
// code that ever touches a sealed payload, and even it never branches on a
// live value; gate outputs are themselves new ciphertexts.
//
// Sealing is AES-256-GCM with the handle as additional authenticated data,
// so a sealed payload cannot be replayed under a different handle. External
// inputs are authenticated with an HMAC proof binding (handle, principal,
// contract instance).
type FheEngine struct {
	Perms *PermissionService

	sealKey    []byte
	inputKey   []byte
	contractID string
}

// NewFheEngine reads FHE_SEAL_KEY, FHE_INPUT_KEY (32 bytes hex each) and
// FHE_CONTRACT_ID from the environment.
func NewFheEngine(perms *PermissionService) (*FheEngine, error) {
	sealKey, err := hex.DecodeString(os.Getenv("FHE_SEAL_KEY"))
	if err != nil || len(sealKey) != 32 {
		return nil, fmt.Errorf("FHE_SEAL_KEY must be 32 bytes of hex")
	}
	inputKey, err := hex.DecodeString(os.Getenv("FHE_INPUT_KEY"))
	if err != nil || len(inputKey) != 32 {
		return nil, fmt.Errorf("FHE_INPUT_KEY must be 32 bytes of hex")
	}
	contractID := os.Getenv("FHE_CONTRACT_ID")
	if contractID == "" {
		return nil, fmt.Errorf("FHE_CONTRACT_ID is not set")
	}

	return &FheEngine{
		Perms:      perms,
		sealKey:    sealKey,
		inputKey:   inputKey,
		contractID: contractID,
	}, nil
}

// SelfPrincipal is the engine's own identity on the permission ledger, the
// analogue of a contract granting itself access to a ciphertext it produced.
func (e *FheEngine) SelfPrincipal() string {
	return e.contractID
}

// ContractID returns the contract-instance identifier inputs are bound to.
func (e *FheEngine) ContractID() string {
	return e.contractID
}

// ===== Sealed store =====

func (e *FheEngine) seal(handle string, value uint64) (sealed, nonce []byte, err error) {
	block, err := aes.NewCipher(e.sealKey)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	var pt [8]byte
	binary.BigEndian.PutUint64(pt[:], value)

	sealed = gcm.Seal(nil, nonce, pt[:], []byte(handle))
	return sealed, nonce, nil
}

func (e *FheEngine) unseal(ct *models.Ciphertext) (uint64, error) {
	block, err := aes.NewCipher(e.sealKey)
	if err != nil {
		return 0, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return 0, err
	}

	pt, err := gcm.Open(nil, ct.Nonce, ct.Sealed, []byte(ct.Handle))
	if err != nil {
		return 0, fmt.Errorf("unseal %s: %w", ct.Handle, err)
	}
	if len(pt) != 8 {
		return 0, fmt.Errorf("unseal %s: bad payload length %d", ct.Handle, len(pt))
	}
	return binary.BigEndian.Uint64(pt), nil
}

// newCiphertext seals value into a fresh handle and stores the row.
func (e *FheEngine) newCiphertext(tx *gorm.DB, value uint64, domain, createdBy string) (string, error) {
	handle := uuid.NewString()
	sealed, nonce, err := e.seal(handle, value)
	if err != nil {
		return "", err
	}

	ct := models.Ciphertext{
		Handle:    handle,
		Sealed:    sealed,
		Nonce:     nonce,
		Domain:    domain,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	if err := tx.Create(&ct).Error; err != nil {
		return "", err
	}
	return handle, nil
}

// loadOperand fetches and unseals a ciphertext for use in a computation.
// The operand must carry the engine's self-permission: a handle nobody
// allow-listed for the engine is not usable, no matter who stored it.
func (e *FheEngine) loadOperand(tx *gorm.DB, handle string) (uint64, string, error) {
	ok, err := e.Perms.IsAllowed(tx, handle, e.SelfPrincipal())
	if err != nil {
		return 0, "", err
	}
	if !ok {
		return 0, "", fmt.Errorf("%w: %s", ErrNotAllowed, handle)
	}

	var ct models.Ciphertext
	if err := tx.First(&ct, "handle = ?", handle).Error; err != nil {
		return 0, "", fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return e.unsealWithDomain(&ct)
}

func (e *FheEngine) unsealWithDomain(ct *models.Ciphertext) (uint64, string, error) {
	v, err := e.unseal(ct)
	if err != nil {
		return 0, "", err
	}
	return v, ct.Domain, nil
}

// produce stores a gate output and immediately self-permits it so the next
// gate in the circuit can consume it.
func (e *FheEngine) produce(tx *gorm.DB, value uint64, domain string) (string, error) {
	handle, err := e.newCiphertext(tx, value, domain, e.SelfPrincipal())
	if err != nil {
		return "", err
	}
	if err := e.Perms.Allow(tx, handle, e.SelfPrincipal()); err != nil {
		return "", err
	}
	return handle, nil
}

// ===== External inputs =====

// EncryptInput seals value on behalf of principal and returns the handle
// together with its binding proof. This is the client-side encryption
// boundary: the fresh handle carries no permissions at all; it only becomes
// usable once VerifyInput accepts it.
func (e *FheEngine) EncryptInput(tx *gorm.DB, value uint64, principal string) (handle, proof string, err error) {
	handle, err = e.newCiphertext(tx, value, models.DomainUint8, principal)
	if err != nil {
		return "", "", err
	}
	return handle, e.inputProof(handle, principal), nil
}

func (e *FheEngine) inputProof(handle, principal string) string {
	mac := hmac.New(sha256.New, e.inputKey)
	mac.Write([]byte(handle + "|" + principal + "|" + e.contractID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyInput authenticates an externally supplied (handle, proof) pair: the
// proof must show the ciphertext was produced by principal for this contract
// instance. On success the handle is allow-listed for the engine so the
// consuming computation (normalization) can read it.
func (e *FheEngine) VerifyInput(tx *gorm.DB, handle, proof, principal string) error {
	var ct models.Ciphertext
	if err := tx.First(&ct, "handle = ?", handle).Error; err != nil {
		return fmt.Errorf("%w: unknown handle", ErrInvalidProof)
	}

	want, err := hex.DecodeString(proof)
	if err != nil {
		return fmt.Errorf("%w: malformed proof", ErrInvalidProof)
	}
	mac := hmac.New(sha256.New, e.inputKey)
	mac.Write([]byte(handle + "|" + principal + "|" + e.contractID))
	if !hmac.Equal(want, mac.Sum(nil)) {
		return ErrInvalidProof
	}

	return e.Perms.Allow(tx, handle, e.SelfPrincipal())
}

// ===== Gates =====
// Each returns a fresh handle; none ever exposes a plaintext to the caller.

// TrivialEncrypt produces an engine-made ciphertext of a public constant
// (zero defaults, select arms).
func (e *FheEngine) TrivialEncrypt(tx *gorm.DB, value uint64) (string, error) {
	return e.produce(tx, value, models.DomainUint8)
}

// Rem3 is the branchless domain clamp: any representable input maps into
// {0,1,2} by arithmetic, never by comparing and branching on the value.
func (e *FheEngine) Rem3(tx *gorm.DB, handle string) (string, error) {
	v, _, err := e.loadOperand(tx, handle)
	if err != nil {
		return "", err
	}
	return e.produce(tx, v%3, models.DomainUint8)
}

// Eq compares two ciphertexts and yields an encrypted boolean.
func (e *FheEngine) Eq(tx *gorm.DB, a, b string) (string, error) {
	va, _, err := e.loadOperand(tx, a)
	if err != nil {
		return "", err
	}
	vb, _, err := e.loadOperand(tx, b)
	if err != nil {
		return "", err
	}
	return e.produce(tx, boolBit(va == vb), models.DomainBool)
}

// And yields the conjunction of two encrypted booleans.
func (e *FheEngine) And(tx *gorm.DB, a, b string) (string, error) {
	va, da, err := e.loadOperand(tx, a)
	if err != nil {
		return "", err
	}
	vb, db, err := e.loadOperand(tx, b)
	if err != nil {
		return "", err
	}
	if da != models.DomainBool || db != models.DomainBool {
		return "", fmt.Errorf("and: operands must be %s", models.DomainBool)
	}
	return e.produce(tx, boolBit(va != 0 && vb != 0), models.DomainBool)
}

// Or yields the disjunction of two encrypted booleans.
func (e *FheEngine) Or(tx *gorm.DB, a, b string) (string, error) {
	va, da, err := e.loadOperand(tx, a)
	if err != nil {
		return "", err
	}
	vb, db, err := e.loadOperand(tx, b)
	if err != nil {
		return "", err
	}
	if da != models.DomainBool || db != models.DomainBool {
		return "", fmt.Errorf("or: operands must be %s", models.DomainBool)
	}
	return e.produce(tx, boolBit(va != 0 || vb != 0), models.DomainBool)
}

// Select is the branchless ternary: cond is an encrypted boolean, and the
// output is a new ciphertext of thenH's or elseH's value. There is no
// plaintext-visible control flow, so callers cannot observe which arm won.
func (e *FheEngine) Select(tx *gorm.DB, cond, thenH, elseH string) (string, error) {
	vc, dc, err := e.loadOperand(tx, cond)
	if err != nil {
		return "", err
	}
	if dc != models.DomainBool {
		return "", fmt.Errorf("select: condition must be %s", models.DomainBool)
	}
	vt, dt, err := e.loadOperand(tx, thenH)
	if err != nil {
		return "", err
	}
	vf, _, err := e.loadOperand(tx, elseH)
	if err != nil {
		return "", err
	}

	out := vf
	if vc != 0 {
		out = vt
	}
	return e.produce(tx, out, dt)
}

// Reveal unseals a handle's value. No permission check here: the decrypt
// service gates callers against the ledger before asking the engine.
func (e *FheEngine) Reveal(db *gorm.DB, handle string) (uint64, error) {
	var ct models.Ciphertext
	if err := db.First(&ct, "handle = ?", handle).Error; err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return e.unseal(&ct)
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
