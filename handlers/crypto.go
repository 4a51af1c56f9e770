// handlers/crypto.go
package handlers

import (
	"confidential-rps-service/middleware"
	"confidential-rps-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCryptoRoutes(app *fiber.App, cryptoService *services.CryptoService) {
	// Both boundaries act on behalf of a specific principal
	secured := app.Group("/s", middleware.PrincipalContextMiddleware())

	secured.Post("/crypto/encrypt", cryptoService.Encrypt)
	secured.Post("/crypto/decrypt", cryptoService.Decrypt)
}
