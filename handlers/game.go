// handlers/game.go
package handlers

import (
	"confidential-rps-service/middleware"
	"confidential-rps-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGameRoutes(app *fiber.App, gameService *services.GameService) {
	// 🔓 Public reads — no principal context, but still behind Gateway auth
	app.Get("/games/next-id", gameService.GetNextID)
	app.Get("/games/:id", gameService.GetGame)

	// 🔐 Secured routes — require a verified principal address
	secured := app.Group("/s", middleware.PrincipalContextMiddleware())

	secured.Post("/games", gameService.CreateGame)
	secured.Post("/games/:id/moves", gameService.SubmitMove)
}
