// Package handler holds what the route handlers share.
package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// RenderError writes the error page with status. message is shown to the user
// and must not carry internal details.
func RenderError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render(ErrorTemplate, fiber.Map{
		"Title":   utils.StatusMessage(status),
		"Status":  status,
		"Message": message,
	}, BaseLayout)
}
