package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"confidential-rps-service/models"
	"confidential-rps-service/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	t.Setenv("FHE_SEAL_KEY", strings.Repeat("ab", 32))
	t.Setenv("FHE_INPUT_KEY", strings.Repeat("cd", 32))
	t.Setenv("FHE_CONTRACT_ID", "rps-test-instance")

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

	perms := services.NewPermissionService(db)
	engine, err := services.NewFheEngine(perms)
	require.NoError(t, err)

	app := fiber.New()
	SetupGameRoutes(app, services.NewGameService(db, engine, perms))
	SetupCryptoRoutes(app, services.NewCryptoService(db, engine, perms))
	return app
}

func request(t *testing.T, app *fiber.App, method, path, principal string, body any) (int, map[string]any) {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("X-Principal-Address", principal)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestGetGameReturns404ForMissingID(t *testing.T) {
	app := newTestApp(t)

	status, body := request(t, app, http.MethodGet, "/games/999", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "game not found", body["error"])
}

func TestSecuredRoutesRequirePrincipal(t *testing.T) {
	app := newTestApp(t)

	status, _ := request(t, app, http.MethodPost, "/s/games", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = request(t, app, http.MethodPost, "/s/crypto/decrypt", "", map[string]any{"handle": "x"})
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestDecryptUnknownHandleReturns404(t *testing.T) {
	app := newTestApp(t)

	status, body := request(t, app, http.MethodPost, "/s/crypto/decrypt", "alice",
		map[string]any{"handle": "no-such-handle"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "unknown ciphertext handle", body["error"])
}

func TestFullGameOverHTTP(t *testing.T) {
	app := newTestApp(t)

	// Alice opens a game
	status, game := request(t, app, http.MethodPost, "/s/games", "alice", nil)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, float64(1), game["id"])
	require.Equal(t, models.StatusCreated, game["status"])

	// Next id reflects the allocation
	status, next := request(t, app, http.MethodGet, "/games/next-id", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(2), next["next_id"])

	// Alice encrypts Paper and submits
	status, enc := request(t, app, http.MethodPost, "/s/crypto/encrypt", "alice",
		map[string]any{"value": models.MovePaper})
	require.Equal(t, http.StatusCreated, status)

	status, game = request(t, app, http.MethodPost, "/s/games/1/moves", "alice",
		map[string]any{"handle": enc["handle"], "proof": enc["proof"]})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, models.StatusPlayer1Submitted, game["status"])

	// Alice cannot go again
	status, enc = request(t, app, http.MethodPost, "/s/crypto/encrypt", "alice",
		map[string]any{"value": models.MoveRock})
	require.Equal(t, http.StatusCreated, status)
	status, _ = request(t, app, http.MethodPost, "/s/games/1/moves", "alice",
		map[string]any{"handle": enc["handle"], "proof": enc["proof"]})
	require.Equal(t, http.StatusConflict, status)

	// Bob answers with Rock; the game resolves synchronously
	status, enc = request(t, app, http.MethodPost, "/s/crypto/encrypt", "bob",
		map[string]any{"value": models.MoveRock})
	require.Equal(t, http.StatusCreated, status)

	status, game = request(t, app, http.MethodPost, "/s/games/1/moves", "bob",
		map[string]any{"handle": enc["handle"], "proof": enc["proof"]})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, models.StatusResolved, game["status"])
	require.Equal(t, "bob", game["player2"])

	resultHandle := game["result_handle"].(string)

	// Both players read the result: Paper beats Rock, player1 wins
	for _, principal := range []string{"alice", "bob"} {
		status, out := request(t, app, http.MethodPost, "/s/crypto/decrypt", principal,
			map[string]any{"handle": resultHandle})
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, float64(models.ResultPlayer1Wins), out["value"])
	}

	// Carol reads nothing
	status, _ = request(t, app, http.MethodPost, "/s/crypto/decrypt", "carol",
		map[string]any{"handle": resultHandle})
	require.Equal(t, http.StatusForbidden, status)

	// A forged proof is rejected at submission time
	status, _ = request(t, app, http.MethodPost, "/s/games", "carol", nil)
	require.Equal(t, http.StatusCreated, status)
	status, enc = request(t, app, http.MethodPost, "/s/crypto/encrypt", "dave",
		map[string]any{"value": models.MoveRock})
	require.Equal(t, http.StatusCreated, status)
	status, _ = request(t, app, http.MethodPost, "/s/games/2/moves", "carol",
		map[string]any{"handle": enc["handle"], "proof": enc["proof"]})
	require.Equal(t, http.StatusUnauthorized, status)
}
