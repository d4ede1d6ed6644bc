package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kobopay/kobo_pay/internal/transfer"
)

// RegisterTransferRoutes wires money movement endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Post("/withdrawals", h.Withdraw)
}
