// models/permission.go
package models

import "time"

// Permission is one entry of the decryption allow-list: (handle, principal)
// means the principal may decrypt that ciphertext. Entries are additive only;
// no revocation path exists anywhere in the service.
type Permission struct {
	ID uint64 `json:"id" gorm:"primaryKey;autoIncrement"`

	Handle    string `json:"handle" gorm:"uniqueIndex:idx_perm_handle_principal;not null"`
	Principal string `json:"principal" gorm:"uniqueIndex:idx_perm_handle_principal;not null"`

	GrantedAt time.Time `json:"granted_at" gorm:"autoCreateTime"`
}
