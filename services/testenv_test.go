package services

import (
	"strings"
	"testing"

	"confidential-rps-service/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Game{},
		&models.Counter{},
		&models.Ciphertext{},
		&models.Permission{},
		&models.GameEvent{},
	))
	return db
}

func newTestServices(t *testing.T) (*GameService, *CryptoService) {
	t.Helper()

	t.Setenv("FHE_SEAL_KEY", strings.Repeat("ab", 32))
	t.Setenv("FHE_INPUT_KEY", strings.Repeat("cd", 32))
	t.Setenv("FHE_CONTRACT_ID", "rps-test-instance")

	db := newTestDB(t)
	perms := NewPermissionService(db)
	engine, err := NewFheEngine(perms)
	require.NoError(t, err)

	return NewGameService(db, engine, perms), NewCryptoService(db, engine, perms)
}

// encryptFor runs the client-side encryption boundary for a principal.
func encryptFor(t *testing.T, cs *CryptoService, principal string, value uint64) (handle, proof string) {
	t.Helper()

	err := cs.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		handle, proof, err = cs.Engine.EncryptInput(tx, value, principal)
		return err
	})
	require.NoError(t, err)
	return handle, proof
}
