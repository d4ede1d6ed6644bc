package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/kobopay/kobo_pay/internal/ledger"
)

// Handler exposes HTTP endpoints for outbound money movement.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	Amount                 decimal.Decimal `json:"amount"`
	RecipientAccountNumber string          `json:"recipient_account_number"`
	RecipientBank          string          `json:"recipient_bank"`
	Description            string          `json:"description"`
}

type withdrawalRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type transactionResponse struct {
	ID                     string          `json:"id"`
	Type                   string          `json:"type"`
	Status                 string          `json:"status"`
	Amount                 decimal.Decimal `json:"amount"`
	Reference              string          `json:"reference"`
	RecipientAccountNumber string          `json:"recipient_account_number,omitempty"`
	RecipientBank          string          `json:"recipient_bank,omitempty"`
	Description            string          `json:"description,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
}

// Transfer initiates a transfer to an external bank account. The response
// carries whatever status the protocol reached: completed, failed, or pending.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	txn, err := h.service.Transfer(c.UserContext(), Input{
		OwnerID:                uid,
		Amount:                 req.Amount,
		RecipientAccountNumber: req.RecipientAccountNumber,
		RecipientBank:          req.RecipientBank,
		Description:            req.Description,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(txn))
}

// Withdraw initiates a withdrawal to the owner's settlement account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	txn, err := h.service.Withdraw(c.UserContext(), Input{
		OwnerID:     uid,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(txn))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, ledger.ErrDuplicateReference):
		return fiber.NewError(http.StatusConflict, "duplicate transaction")
	default:
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
}

func toResponse(txn ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:                     txn.ID,
		Type:                   txn.Type,
		Status:                 txn.Status,
		Amount:                 txn.Amount,
		Reference:              txn.Reference,
		RecipientAccountNumber: txn.RecipientAccountNumber,
		RecipientBank:          txn.RecipientBank,
		Description:            txn.Description,
		CreatedAt:              txn.CreatedAt,
	}
}
