// Package account provisions and queries custodial wallet accounts.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobopay/kobo_pay/internal/gateway"
	"github.com/kobopay/kobo_pay/internal/ledger"
	"github.com/kobopay/kobo_pay/internal/user"
)

const currency = "NGN"

// Service provisions accounts through the payment gateway and serves balance
// and history queries from the ledger.
type Service struct {
	store   ledger.Store
	gateway gateway.Client
	users   user.Repository
	logger  *slog.Logger
}

func NewService(store ledger.Store, gw gateway.Client, users user.Repository, logger *slog.Logger) *Service {
	return &Service{store: store, gateway: gw, users: users, logger: logger}
}

// Create provisions one account for the owner. The external account number is
// issued by the gateway; each owner gets at most one account.
func (s *Service) Create(ctx context.Context, ownerID string) (ledger.Account, error) {
	if _, err := s.store.AccountByOwner(ctx, ownerID); err == nil {
		return ledger.Account{}, ledger.ErrAccountExists
	}

	owner, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("look up owner: %w", err)
	}

	first, last := splitName(owner.FullName)
	created, err := s.gateway.CreateAccount(ctx, gateway.CreateAccountInput{
		FirstName: first,
		LastName:  last,
		Phone:     owner.Phone,
		Email:     owner.Email,
	})
	if err != nil {
		return ledger.Account{}, fmt.Errorf("provision gateway account: %w", err)
	}

	account, err := s.store.CreateAccount(ctx, ledger.Account{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		AccountNumber: created.AccountNumber,
		Balance:       decimal.Zero,
		Currency:      currency,
		BankName:      created.BankName,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return ledger.Account{}, err
	}

	s.logger.Info("account provisioned",
		slog.String("owner_id", ownerID),
		slog.String("account_number", account.AccountNumber),
	)
	return account, nil
}

// Get returns the owner's account.
func (s *Service) Get(ctx context.Context, ownerID string) (ledger.Account, error) {
	return s.store.AccountByOwner(ctx, ownerID)
}

// Balance returns the owner's current available balance.
func (s *Service) Balance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	account, err := s.store.AccountByOwner(ctx, ownerID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Transactions lists the owner's transaction history, newest first.
func (s *Service) Transactions(ctx context.Context, ownerID string, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	account, err := s.store.AccountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	filter.AccountID = account.ID
	return s.store.Transactions(ctx, filter)
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
