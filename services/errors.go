// services/errors.go
package services

import "errors"

// Protocol error taxonomy. Handlers map these onto HTTP statuses; everything
// else bubbles up as a 500. All protocol operations are transactional, so a
// returned error always means zero state change.
var (
	// ErrGameNotFound: the referenced game id was never created.
	ErrGameNotFound = errors.New("game not found")

	// ErrAlreadyResolved: submission against a finished game. Retrying the
	// identical call will always fail the same way.
	ErrAlreadyResolved = errors.New("game already resolved")

	// ErrOutOfOrder: submission violates the state machine order
	// (player1 moving twice, or a second player moving first).
	ErrOutOfOrder = errors.New("move out of order")

	// ErrInvalidProof: the ciphertext/proof pair failed input
	// authentication; the caller must re-encrypt and resubmit.
	ErrInvalidProof = errors.New("invalid input proof")

	// ErrAccessDenied: decryption attempted without a ledger grant.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnknownHandle: no ciphertext row for the given handle.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")

	// ErrNotAllowed: the engine was asked to consume a ciphertext that was
	// never allow-listed for it (missing self-permission).
	ErrNotAllowed = errors.New("ciphertext not allow-listed for engine")
)
