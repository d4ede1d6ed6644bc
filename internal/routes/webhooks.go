package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kobopay/kobo_pay/internal/webhook"
)

// RegisterWebhookRoutes wires the payment processor callback endpoint.
func RegisterWebhookRoutes(app *fiber.App, h *webhook.Handler) {
	app.Post("/webhooks/payments", h.Receive)
}
