package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kobopay/kobo_pay/internal/account"
)

// RegisterAccountRoutes wires account provisioning and query endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts/me", h.Get)
	r.Get("/accounts/me/transactions", h.Transactions)
}
