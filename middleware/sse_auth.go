// middleware/sse_auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware authenticates EventSource clients, which cannot set
// headers: the gateway token and the principal address travel as query
// params instead.
//
// Usage:
//
//	app.Get("/events/stream", middleware.SSEAuthMiddleware(), eventService.StreamGameEventsSSE)
func SSEAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("GAME_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ GAME_SERVICE_TOKEN is not set — SSE cannot authenticate clients")
	}

	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		principal := strings.TrimSpace(c.Query("principal"))

		if token == "" || principal == "" {
			log.Printf("[SSEAuth] ❌ Missing query params on %s (token len=%d, principal='%s')",
				c.Path(), len(token), principal)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token or principal in query",
			})
		}

		if token != expectedToken {
			log.Printf("[SSEAuth] ❌ Invalid token for %s (prefix: %.10s...)", c.Path(), token)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals("principal", principal)
		return c.Next()
	}
}
