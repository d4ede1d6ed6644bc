package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobopay/kobo_pay/internal/ledger"
	"github.com/kobopay/kobo_pay/internal/notification"
)

const (
	// EventTransferSuccess resolves a pending transfer as settled.
	EventTransferSuccess = "transfer.success"
	// EventTransferFailed resolves a pending transfer as failed and refunds it.
	EventTransferFailed = "transfer.failed"
	// EventDepositSuccess credits an externally initiated deposit.
	EventDepositSuccess = "deposit.success"
)

// Event is a processor callback. ID is the processor's idempotency key for the
// delivery; Data.Reference correlates it with a locally pending transaction.
type Event struct {
	Event string    `json:"event"`
	ID    string    `json:"id"`
	Data  EventData `json:"data"`
}

// EventData carries the payload of a processor event.
type EventData struct {
	Reference              string          `json:"reference"`
	Amount                 decimal.Decimal `json:"amount"`
	AccountNumber          string          `json:"account_number,omitempty"`
	RecipientAccountNumber string          `json:"recipient_account_number,omitempty"`
	RecipientBank          string          `json:"recipient_bank,omitempty"`
	Reason                 string          `json:"reason,omitempty"`
}

// Service reconciles processor events against the ledger. It races the
// synchronous transfer path on the same transaction rows: the store's
// terminal-state guard decides which side wins, and the loser's attempt
// becomes a no-op.
type Service struct {
	store    ledger.Store
	notifier notification.Notifier
	secret   []byte
	logger   *slog.Logger
}

// NewService constructs a webhook reconciler with the shared signing secret.
func NewService(store ledger.Store, notifier notification.Notifier, secret string, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, secret: []byte(secret), logger: logger}
}

// VerifySignature checks the HMAC-SHA256 hex signature of the raw body.
// Authenticity gates all processing: unverified payloads never reach the
// ledger.
func (s *Service) VerifySignature(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Process applies one verified event. Replays of an already-processed event id
// are acknowledged without re-mutating anything.
func (s *Service) Process(ctx context.Context, event Event) error {
	if event.ID != "" {
		if _, err := s.store.TransactionByEventID(ctx, event.ID); err == nil {
			s.logger.Info("webhook replay acknowledged", slog.String("event_id", event.ID))
			return nil
		}
	}

	switch event.Event {
	case EventTransferSuccess:
		return s.transferSuccess(ctx, event)
	case EventTransferFailed:
		return s.transferFailed(ctx, event)
	case EventDepositSuccess:
		return s.depositSuccess(ctx, event)
	default:
		s.logger.Warn("unhandled webhook event", slog.String("event", event.Event))
		return nil
	}
}

func (s *Service) transferSuccess(ctx context.Context, event Event) error {
	txn, err := s.store.TransactionByReference(ctx, event.Data.Reference)
	if err != nil {
		// A success event for an unknown reference means lost money movement.
		// Surface it so the processor retries and operators notice.
		return fmt.Errorf("transfer.success for reference %s: %w", event.Data.Reference, err)
	}

	resolved, err := s.store.Resolve(ctx, txn.Reference, ledger.StatusCompleted, ledger.Resolution{
		RecipientAccountNumber: event.Data.RecipientAccountNumber,
		RecipientBank:          event.Data.RecipientBank,
		EventID:                event.ID,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			// Classify on the row Resolve returned, not the earlier read: the
			// synchronous path may have resolved in between.
			s.logTerminalRace(resolved, ledger.StatusCompleted, event)
			return nil
		}
		return err
	}

	s.notify(ctx, resolved, notification.KindTransferSuccess,
		fmt.Sprintf("Your transfer of %s to %s was successful", resolved.Amount, resolved.RecipientAccountNumber), event)
	return nil
}

func (s *Service) transferFailed(ctx context.Context, event Event) error {
	txn, err := s.store.TransactionByReference(ctx, event.Data.Reference)
	if err != nil {
		return fmt.Errorf("transfer.failed for reference %s: %w", event.Data.Reference, err)
	}

	reason := event.Data.Reason
	if reason == "" {
		reason = "transfer failed"
	}

	// Only types that debited the account get the compensating credit, and the
	// store refunds only while the row is still pending.
	refund := txn.Type == ledger.TypeTransfer || txn.Type == ledger.TypeWithdrawal
	resolved, err := s.store.Resolve(ctx, txn.Reference, ledger.StatusFailed, ledger.Resolution{
		Refund:      refund,
		Description: reason,
		EventID:     event.ID,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			s.logTerminalRace(resolved, ledger.StatusFailed, event)
			return nil
		}
		return err
	}

	s.notify(ctx, resolved, notification.KindTransferFailed,
		fmt.Sprintf("Your transfer of %s failed: %s", resolved.Amount, reason), event)
	return nil
}

func (s *Service) depositSuccess(ctx context.Context, event Event) error {
	// A signed event is still untrusted input. A non-positive amount would
	// turn the credit into a debit, so it never reaches the store.
	if !event.Data.Amount.IsPositive() {
		return fmt.Errorf("deposit.success with non-positive amount %s: %w", event.Data.Amount, ledger.ErrInvalidAmount)
	}

	account, err := s.store.AccountByNumber(ctx, event.Data.AccountNumber)
	if err != nil {
		// Money arrived for an account the ledger does not recognize. Never
		// drop it silently.
		return fmt.Errorf("deposit.success for account %s: %w", event.Data.AccountNumber, err)
	}

	reference := event.Data.Reference
	if reference == "" {
		reference = event.ID
	}

	deposit, err := s.store.RecordDeposit(ctx, ledger.Transaction{
		ID:          uuid.NewString(),
		Type:        ledger.TypeDeposit,
		Amount:      event.Data.Amount,
		AccountID:   account.ID,
		ToAccountID: account.ID,
		Reference:   reference,
		EventID:     event.ID,
		Description: "external deposit",
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			s.logger.Info("deposit replay acknowledged", slog.String("reference", reference))
			return nil
		}
		return err
	}

	s.notify(ctx, deposit, notification.KindDepositSuccess,
		fmt.Sprintf("Your account has been credited with %s", deposit.Amount), event)
	return nil
}

// logTerminalRace records the outcome of losing the resolution race. txn must
// be the current row as returned by the failed Resolve call. When both sides
// agree on the terminal status it is a benign replay; a disagreement is an
// anomaly for manual review, never silently overwritten.
func (s *Service) logTerminalRace(txn ledger.Transaction, wanted string, event Event) {
	if txn.Status == wanted {
		s.logger.Info("webhook replay: transaction already resolved",
			slog.String("reference", txn.Reference),
			slog.String("status", txn.Status),
		)
		return
	}
	s.logger.Error("webhook conflicts with local terminal state",
		slog.String("reference", txn.Reference),
		slog.String("local_status", txn.Status),
		slog.String("event", event.Event),
		slog.String("event_id", event.ID),
	)
}

func (s *Service) notify(ctx context.Context, txn ledger.Transaction, kind, body string, event Event) {
	if s.notifier == nil {
		return
	}
	account, err := s.store.AccountByID(ctx, txn.AccountID)
	if err != nil {
		s.logger.Warn("notification skipped: account lookup failed", slog.Any("error", err))
		return
	}
	err = s.notifier.Send(ctx, notification.Message{
		OwnerID: account.OwnerID,
		Kind:    kind,
		Body:    body,
		Metadata: map[string]string{
			"amount":    txn.Amount.String(),
			"reference": txn.Reference,
			"event_id":  event.ID,
		},
	})
	if err != nil {
		// Fire-and-forget: delivery failure never affects the ledger outcome.
		s.logger.Warn("notification delivery failed",
			slog.String("reference", txn.Reference),
			slog.Any("error", err),
		)
	}
}
