package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobopay/kobo_pay/internal/gateway"
	"github.com/kobopay/kobo_pay/internal/ledger"
	"github.com/kobopay/kobo_pay/internal/notification"
)

const (
	transferPrefix   = "TRF"
	withdrawalPrefix = "WDL"
)

// Service coordinates outbound money movement. The local writes (pending row
// plus debit) run in one store unit of work; the gateway call happens outside
// it because an external processor cannot join a database transaction. The
// pending state left by a crash or timeout is closed later by the webhook
// reconciler or the sweep.
type Service struct {
	store          ledger.Store
	gateway        gateway.Client
	notifier       notification.Notifier
	logger         *slog.Logger
	gatewayTimeout time.Duration
}

// NewService constructs the transfer coordinator.
func NewService(store ledger.Store, gw gateway.Client, notifier notification.Notifier, logger *slog.Logger, gatewayTimeout time.Duration) *Service {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &Service{store: store, gateway: gw, notifier: notifier, logger: logger, gatewayTimeout: gatewayTimeout}
}

// Input captures the data needed to move funds out of an account.
type Input struct {
	OwnerID                string
	Amount                 decimal.Decimal
	RecipientAccountNumber string
	RecipientBank          string
	Description            string
}

// Transfer sends funds to an external bank account. The returned transaction
// carries the resulting status: completed, failed (already refunded), or
// pending when the gateway outcome is not yet known.
func (s *Service) Transfer(ctx context.Context, input Input) (ledger.Transaction, error) {
	if input.RecipientAccountNumber == "" {
		return ledger.Transaction{}, fmt.Errorf("recipient account number is required")
	}
	return s.initiate(ctx, ledger.TypeTransfer, transferPrefix, input)
}

// Withdraw sends funds back to the owner's own settlement account.
func (s *Service) Withdraw(ctx context.Context, input Input) (ledger.Transaction, error) {
	return s.initiate(ctx, ledger.TypeWithdrawal, withdrawalPrefix, input)
}

func (s *Service) initiate(ctx context.Context, txnType, prefix string, input Input) (ledger.Transaction, error) {
	if !input.Amount.IsPositive() {
		return ledger.Transaction{}, fmt.Errorf("amount must be positive")
	}

	account, err := s.store.AccountByOwner(ctx, input.OwnerID)
	if err != nil {
		return ledger.Transaction{}, err
	}

	recipientNo := input.RecipientAccountNumber
	recipientBank := input.RecipientBank
	if txnType == ledger.TypeWithdrawal {
		recipientNo = account.AccountNumber
		recipientBank = account.BankName
	}

	reference := NewReference(prefix)
	pending, err := s.store.DebitWithTransaction(ctx, ledger.Transaction{
		ID:                     uuid.NewString(),
		Type:                   txnType,
		Amount:                 input.Amount,
		AccountID:              account.ID,
		FromAccountID:          account.ID,
		Reference:              reference,
		RecipientAccountNumber: recipientNo,
		RecipientBank:          recipientBank,
		Description:            input.Description,
	})
	if err != nil {
		return ledger.Transaction{}, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, err := s.gateway.TransferFunds(gctx, gateway.TransferInput{
		Amount:        input.Amount,
		AccountNumber: recipientNo,
		BankName:      recipientBank,
		Narration:     fmt.Sprintf("Transfer of %s to %s", input.Amount, recipientNo),
		Reference:     reference,
	})
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		// The processor may have acted regardless. Never guess an outcome from
		// a timeout: leave the transaction pending for reconciliation.
		s.logger.Warn("gateway timeout, leaving transaction pending",
			slog.String("reference", reference),
			slog.Any("error", err),
		)
		return pending, nil
	default:
		return s.fail(ctx, pending, err.Error())
	}

	switch result.Status {
	case gateway.StatusFailed:
		return s.fail(ctx, pending, "processor rejected transfer")
	case gateway.StatusPending:
		return pending, nil
	}

	completed, err := s.store.Resolve(ctx, reference, ledger.StatusCompleted, ledger.Resolution{})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			// The webhook won the race; its resolution stands.
			return s.store.TransactionByReference(ctx, reference)
		}
		return ledger.Transaction{}, err
	}

	s.notify(ctx, account.OwnerID, notification.KindTransferSuccess,
		fmt.Sprintf("Your %s of %s to %s was successful", txnType, completed.Amount, recipientNo), completed)
	return completed, nil
}

// fail marks the transaction failed and credits the debit back in the same
// store unit of work. Surfaced to the caller as a failed transaction, not an
// error: the ledger state is consistent.
func (s *Service) fail(ctx context.Context, pending ledger.Transaction, reason string) (ledger.Transaction, error) {
	failed, err := s.store.Resolve(ctx, pending.Reference, ledger.StatusFailed, ledger.Resolution{
		Refund:      true,
		Description: reason,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return s.store.TransactionByReference(ctx, pending.Reference)
		}
		return ledger.Transaction{}, err
	}

	s.logger.Info("transfer failed, debit refunded",
		slog.String("reference", failed.Reference),
		slog.String("reason", reason),
	)
	s.notify(ctx, "", notification.KindTransferFailed,
		fmt.Sprintf("Your %s of %s failed: %s", failed.Type, failed.Amount, reason), failed)
	return failed, nil
}

// SweepPending reconciles pending transactions older than the horizon against
// the gateway. Returns how many it resolved.
func (s *Service) SweepPending(ctx context.Context, horizon time.Duration) (int, error) {
	stale, err := s.store.PendingOlderThan(ctx, time.Now().Add(-horizon))
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, txn := range stale {
		if txn.Type == ledger.TypeDeposit {
			continue
		}
		result, err := s.gateway.VerifyTransfer(ctx, txn.Reference)
		if err != nil {
			s.logger.Warn("sweep: verify failed",
				slog.String("reference", txn.Reference),
				slog.Any("error", err),
			)
			continue
		}

		var status string
		res := ledger.Resolution{}
		switch result.Status {
		case gateway.StatusSuccess:
			status = ledger.StatusCompleted
		case gateway.StatusFailed:
			status = ledger.StatusFailed
			res.Refund = true
			res.Description = "resolved by reconciliation sweep"
		default:
			continue
		}

		if _, err := s.store.Resolve(ctx, txn.Reference, status, res); err != nil {
			if errors.Is(err, ledger.ErrInvalidTransition) {
				continue
			}
			return resolved, err
		}
		s.logger.Info("sweep: resolved stuck transaction",
			slog.String("reference", txn.Reference),
			slog.String("status", status),
		)
		resolved++
	}
	return resolved, nil
}

func (s *Service) notify(ctx context.Context, ownerID, kind, body string, txn ledger.Transaction) {
	if s.notifier == nil {
		return
	}
	if ownerID == "" {
		account, err := s.store.AccountByID(ctx, txn.AccountID)
		if err != nil {
			s.logger.Warn("notification skipped: account lookup failed", slog.Any("error", err))
			return
		}
		ownerID = account.OwnerID
	}
	err := s.notifier.Send(ctx, notification.Message{
		OwnerID: ownerID,
		Kind:    kind,
		Body:    body,
		Metadata: map[string]string{
			"amount":    txn.Amount.String(),
			"reference": txn.Reference,
		},
	})
	if err != nil {
		s.logger.Warn("notification delivery failed",
			slog.String("reference", txn.Reference),
			slog.Any("error", err),
		)
	}
}
