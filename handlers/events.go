// handlers/events.go
package handlers

import (
	"confidential-rps-service/middleware"
	"confidential-rps-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupEventRoutes(app *fiber.App, eventService *services.EventService) {
	// EventSource clients can't set headers, so auth rides in the query
	app.Get("/events/stream", middleware.SSEAuthMiddleware(), eventService.StreamGameEventsSSE)
}
