package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kobopay/kobo_pay/internal/notification"
)

// RegisterNotificationRoutes wires the notification feed endpoints.
func RegisterNotificationRoutes(r fiber.Router, h *notification.Handler) {
	r.Get("/notifications", h.List)
	r.Post("/notifications/:id/read", h.MarkRead)
}
