package webhook

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// SignatureHeader carries the HMAC-SHA256 hex signature of the raw body.
const SignatureHeader = "X-Kobo-Signature"

// Handler receives processor callbacks over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Receive verifies and processes one event. A 200 acknowledges the delivery;
// any non-2xx tells the processor to redeliver later.
func (h *Handler) Receive(c *fiber.Ctx) error {
	body := c.Body()
	if !h.service.VerifySignature(body, c.Get(SignatureHeader)) {
		h.logger.Warn("webhook rejected: bad signature", slog.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid signature"})
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "malformed payload"})
	}

	if err := h.service.Process(c.Context(), event); err != nil {
		h.logger.Error("webhook processing failed",
			slog.String("event", event.Event),
			slog.String("event_id", event.ID),
			slog.Any("error", err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "processing failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "acknowledged"})
}
