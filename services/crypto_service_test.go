package services

import (
	"testing"

	"confidential-rps-service/models"

	"github.com/stretchr/testify/require"
)

func TestDecryptPermissionBoundary(t *testing.T) {
	gs, cs := newTestServices(t)

	game := playGame(t, gs, cs, "alice", "bob", models.MovePaper, models.MoveScissors)

	// Each player decrypts their own move and the shared result.
	m1, err := cs.decrypt("alice", game.Move1Handle)
	require.NoError(t, err)
	require.Equal(t, models.MovePaper, m1)

	m2, err := cs.decrypt("bob", game.Move2Handle)
	require.NoError(t, err)
	require.Equal(t, models.MoveScissors, m2)

	for _, principal := range []string{"alice", "bob"} {
		result, err := cs.decrypt(principal, game.ResultHandle)
		require.NoError(t, err)
		require.Equal(t, models.ResultPlayer2Wins, result)
	}

	// Neither player may decrypt the opponent's move.
	_, err = cs.decrypt("alice", game.Move2Handle)
	require.ErrorIs(t, err, ErrAccessDenied)
	_, err = cs.decrypt("bob", game.Move1Handle)
	require.ErrorIs(t, err, ErrAccessDenied)

	// A third party decrypts nothing at all.
	for _, handle := range []string{game.Move1Handle, game.Move2Handle, game.ResultHandle} {
		_, err := cs.decrypt("carol", handle)
		require.ErrorIs(t, err, ErrAccessDenied)
	}
}

func TestDecryptUnknownHandle(t *testing.T) {
	_, cs := newTestServices(t)

	// A handle that was never minted is reported as unknown, not denied.
	_, err := cs.decrypt("alice", "no-such-handle")
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestPermissionGrantsAreIdempotent(t *testing.T) {
	gs, cs := newTestServices(t)

	game := playGame(t, gs, cs, "alice", "bob", models.MoveRock, models.MoveRock)

	var before int64
	require.NoError(t, gs.DB.Model(&models.Permission{}).Count(&before).Error)

	// Re-granting an existing permission adds no rows and does not fail.
	require.NoError(t, gs.Perms.Allow(gs.DB, game.ResultHandle, "alice"))

	var after int64
	require.NoError(t, gs.DB.Model(&models.Permission{}).Count(&after).Error)
	require.Equal(t, before, after)

	allowed, err := gs.Perms.IsAllowed(gs.DB, game.ResultHandle, "alice")
	require.NoError(t, err)
	require.True(t, allowed)
}
