package notification

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the owner's notification feed.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// List returns the caller's notifications, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	messages, err := h.store.ListByOwner(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if messages == nil {
		messages = []Message{}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"notifications": messages})
}

// MarkRead flips one of the caller's notifications to read.
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	id := c.Params("id")

	// Owners may only ack their own notifications.
	messages, err := h.store.ListByOwner(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	owned := false
	for _, msg := range messages {
		if msg.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return fiber.NewError(http.StatusNotFound, "notification not found")
	}

	if err := h.store.MarkRead(c.UserContext(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "notification not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "read"})
}
