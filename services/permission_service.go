// services/permission_service.go
package services

import (
	"errors"

	"confidential-rps-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PermissionService is the explicit decryption allow-list. Every ciphertext
// that should ever be readable, by the engine for further computation or
// by a player for decryption, gets an entry here first. Grants are additive
// only; nothing in this service deletes entries.
type PermissionService struct {
	DB *gorm.DB
}

func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{DB: db}
}

// Allow grants principal decryption access to handle. Idempotent: granting
// an existing permission is a no-op, not an error.
func (p *PermissionService) Allow(tx *gorm.DB, handle, principal string) error {
	perm := models.Permission{
		Handle:    handle,
		Principal: principal,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&perm).Error
}

// IsAllowed reports whether principal holds a grant on handle.
func (p *PermissionService) IsAllowed(db *gorm.DB, handle, principal string) (bool, error) {
	var perm models.Permission
	err := db.Where("handle = ? AND principal = ?", handle, principal).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
