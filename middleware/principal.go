// middleware/principal.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PrincipalContextMiddleware extracts the caller's principal address set by
// the Gateway after signature verification. Mounted on the /s group, so a
// missing principal is always a rejection.
func PrincipalContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal := strings.TrimSpace(c.Get("X-Principal-Address"))
		if principal == "" {
			log.Printf("❌ [PRINCIPAL] X-Principal-Address missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-Principal-Address — request must come through gateway with a verified signer",
			})
		}

		c.Locals("principal", principal)
		return c.Next()
	}
}
