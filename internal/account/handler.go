package account

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kobopay/kobo_pay/internal/ledger"
)

// Handler exposes account endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type accountResponse struct {
	ID            string    `json:"id"`
	AccountNumber string    `json:"account_number"`
	Balance       string    `json:"balance"`
	Currency      string    `json:"currency"`
	BankName      string    `json:"bank_name"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance.StringFixed(2),
		Currency:      a.Currency,
		BankName:      a.BankName,
		CreatedAt:     a.CreatedAt,
	}
}

// Create provisions the caller's account.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	account, err := h.service.Create(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			return fiber.NewError(http.StatusConflict, "account already exists")
		}
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(account))
}

// Get returns the caller's account with its current balance.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	account, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(account))
}

type transactionResponse struct {
	ID                     string    `json:"id"`
	Type                   string    `json:"type"`
	Status                 string    `json:"status"`
	Amount                 string    `json:"amount"`
	Reference              string    `json:"reference"`
	RecipientAccountNumber string    `json:"recipient_account_number,omitempty"`
	RecipientBank          string    `json:"recipient_bank,omitempty"`
	Description            string    `json:"description,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// Transactions lists the caller's history. Supports type, status, reference
// and limit query parameters.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)

	filter := ledger.TransactionFilter{
		Type:      c.Query("type"),
		Status:    c.Query("status"),
		Reference: c.Query("reference"),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return fiber.NewError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}

	txns, err := h.service.Transactions(c.UserContext(), uid, filter)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return fiber.NewError(http.StatusNotFound, "account not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]transactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, transactionResponse{
			ID:                     txn.ID,
			Type:                   txn.Type,
			Status:                 txn.Status,
			Amount:                 txn.Amount.StringFixed(2),
			Reference:              txn.Reference,
			RecipientAccountNumber: txn.RecipientAccountNumber,
			RecipientBank:          txn.RecipientBank,
			Description:            txn.Description,
			CreatedAt:              txn.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}
