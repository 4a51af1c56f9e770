// models/ciphertext.go
package models

import "time"

// Ciphertext value domains.
const (
	DomainUint8 = "euint8" // small encrypted integers (moves, results)
	DomainBool  = "ebool"  // encrypted booleans (gate outputs)
)

// Ciphertext is one sealed row of the handle store. The Handle is the only
// thing callers ever see; Sealed/Nonce are the AES-GCM payload and are bound
// to the handle, so a row cannot be re-keyed under a different handle.
type Ciphertext struct {
	Handle string `json:"handle" gorm:"primaryKey"`

	Sealed []byte `json:"-" gorm:"not null"`
	Nonce  []byte `json:"-" gorm:"not null"`

	Domain    string    `json:"domain" gorm:"type:varchar(16)"`
	CreatedBy string    `json:"created_by"` // principal or engine identity
	CreatedAt time.Time `json:"created_at"`
}
