package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobopay/kobo_pay/internal/ledger"
	"github.com/kobopay/kobo_pay/internal/logging"
	"github.com/kobopay/kobo_pay/internal/notification"
)

const testSecret = "webhook-test-secret"

func newTestService(store ledger.Store) *Service {
	return NewService(store, notification.NewMemoryStore(), testSecret, logging.Discard())
}

func seedAccount(t *testing.T, store ledger.Store, balance string) ledger.Account {
	t.Helper()
	account, err := store.CreateAccount(context.Background(), ledger.Account{
		ID:            uuid.NewString(),
		OwnerID:       uuid.NewString(),
		AccountNumber: "9876543210",
		Balance:       decimal.Zero,
		Currency:      "NGN",
		BankName:      "Kobo MFB",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	ledger.SeedBalance(store, account.ID, decimal.RequireFromString(balance))
	return account
}

// seedPendingTransfer debits the account and leaves the transaction pending,
// as the synchronous path does when the gateway times out.
func seedPendingTransfer(t *testing.T, store ledger.Store, account ledger.Account, amount, reference string) ledger.Transaction {
	t.Helper()
	txn, err := store.DebitWithTransaction(context.Background(), ledger.Transaction{
		ID:                     uuid.NewString(),
		Type:                   ledger.TypeTransfer,
		Status:                 ledger.StatusPending,
		Amount:                 decimal.RequireFromString(amount),
		AccountID:              account.ID,
		FromAccountID:          account.ID,
		Reference:              reference,
		RecipientAccountNumber: "0123456789",
		RecipientBank:          "First Bank",
	})
	if err != nil {
		t.Fatalf("seed pending transfer: %v", err)
	}
	return txn
}

func TestTransferSuccessResolvesPending(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	seedPendingTransfer(t, store, account, "60.00", "TRF-abc")
	service := newTestService(store)

	err := service.Process(ctx, Event{
		Event: EventTransferSuccess,
		ID:    "evt-1",
		Data:  EventData{Reference: "TRF-abc", Amount: decimal.RequireFromString("60.00")},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	txn, err := store.TransactionByReference(ctx, "TRF-abc")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if txn.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed, got %s", txn.Status)
	}
	if txn.EventID != "evt-1" {
		t.Fatalf("expected event id recorded, got %q", txn.EventID)
	}

	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("debit must stand after success, got balance %s", got.Balance)
	}
}

func TestTransferFailedRefundsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	seedPendingTransfer(t, store, account, "60.00", "TRF-abc")
	service := newTestService(store)

	for i, id := range []string{"evt-1", "evt-2"} {
		err := service.Process(ctx, Event{
			Event: EventTransferFailed,
			ID:    id,
			Data:  EventData{Reference: "TRF-abc", Reason: "insufficient gateway float"},
		})
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected a single refund back to 100.00, got %s", got.Balance)
	}
	txn, _ := store.TransactionByReference(ctx, "TRF-abc")
	if txn.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", txn.Status)
	}
}

func TestConflictingTerminalEventIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	seedPendingTransfer(t, store, account, "60.00", "TRF-abc")
	service := newTestService(store)

	if err := service.Process(ctx, Event{
		Event: EventTransferFailed,
		ID:    "evt-1",
		Data:  EventData{Reference: "TRF-abc"},
	}); err != nil {
		t.Fatalf("failed event: %v", err)
	}

	// A later success for the same reference must not flip the outcome or
	// touch the refunded balance.
	if err := service.Process(ctx, Event{
		Event: EventTransferSuccess,
		ID:    "evt-2",
		Data:  EventData{Reference: "TRF-abc"},
	}); err != nil {
		t.Fatalf("conflicting event should be acknowledged, got %v", err)
	}

	txn, _ := store.TransactionByReference(ctx, "TRF-abc")
	if txn.Status != ledger.StatusFailed {
		t.Fatalf("expected failed to stand, got %s", txn.Status)
	}
	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected balance untouched at 100.00, got %s", got.Balance)
	}
}

// staleReadStore serves reference lookups from a stale snapshot that still
// says pending, simulating the window where the synchronous path resolves
// between the reconciler's read and its Resolve call.
type staleReadStore struct {
	ledger.Store
}

func (s *staleReadStore) TransactionByReference(ctx context.Context, reference string) (ledger.Transaction, error) {
	txn, err := s.Store.TransactionByReference(ctx, reference)
	if err != nil {
		return txn, err
	}
	txn.Status = ledger.StatusPending
	return txn, nil
}

func TestAgreeingReplayAfterRaceIsNotConflict(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	seedPendingTransfer(t, store, account, "60.00", "TRF-abc")

	// The synchronous path wins the race.
	if _, err := store.Resolve(ctx, "TRF-abc", ledger.StatusCompleted, ledger.Resolution{}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	service := NewService(&staleReadStore{Store: store}, notification.NewMemoryStore(), testSecret, logger)

	err := service.Process(ctx, Event{
		Event: EventTransferSuccess,
		ID:    "evt-9",
		Data:  EventData{Reference: "TRF-abc"},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if strings.Contains(buf.String(), "conflicts with local terminal state") {
		t.Fatalf("agreeing outcome must be logged as a replay, not a conflict:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "already resolved") {
		t.Fatalf("expected a replay log line, got:\n%s", buf.String())
	}
}

func TestReplayByEventID(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	seedPendingTransfer(t, store, account, "60.00", "TRF-abc")
	service := newTestService(store)

	event := Event{
		Event: EventTransferFailed,
		ID:    "evt-dup",
		Data:  EventData{Reference: "TRF-abc"},
	}
	if err := service.Process(ctx, event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := service.Process(ctx, event); err != nil {
		t.Fatalf("replay must be acknowledged, got %v", err)
	}

	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("replay must not refund twice, got %s", got.Balance)
	}
}

func TestTransferSuccessUnknownReference(t *testing.T) {
	store := ledger.NewInMemory()
	service := newTestService(store)

	err := service.Process(context.Background(), Event{
		Event: EventTransferSuccess,
		ID:    "evt-1",
		Data:  EventData{Reference: "TRF-missing"},
	})
	if !errors.Is(err, ledger.ErrTransactionNotFound) {
		t.Fatalf("expected transaction not found, got %v", err)
	}
}

func TestDepositSuccessCreditsAccount(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "10.00")
	service := newTestService(store)

	event := Event{
		Event: EventDepositSuccess,
		ID:    "evt-dep",
		Data: EventData{
			Reference:     "DEP-1",
			Amount:        decimal.RequireFromString("25.00"),
			AccountNumber: account.AccountNumber,
		},
	}
	if err := service.Process(ctx, event); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := service.Process(ctx, event); err != nil {
		t.Fatalf("replay must be acknowledged, got %v", err)
	}

	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("35.00")) {
		t.Fatalf("expected 35.00 after a single credit, got %s", got.Balance)
	}
	txn, err := store.TransactionByReference(ctx, "DEP-1")
	if err != nil {
		t.Fatalf("lookup deposit: %v", err)
	}
	if txn.Type != ledger.TypeDeposit || txn.Status != ledger.StatusCompleted {
		t.Fatalf("unexpected deposit row: %s/%s", txn.Type, txn.Status)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "10.00")
	service := newTestService(store)

	for _, amount := range []string{"-50.00", "0"} {
		err := service.Process(ctx, Event{
			Event: EventDepositSuccess,
			ID:    "evt-" + amount,
			Data: EventData{
				Reference:     "DEP-" + amount,
				Amount:        decimal.RequireFromString(amount),
				AccountNumber: account.AccountNumber,
			},
		})
		if !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := store.TransactionByReference(ctx, "DEP-"+amount); !errors.Is(err, ledger.ErrTransactionNotFound) {
			t.Fatalf("amount %s: no transaction row may be written", amount)
		}
	}

	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("balance must stay 10.00, got %s", got.Balance)
	}
}

func TestDepositUnknownAccount(t *testing.T) {
	store := ledger.NewInMemory()
	service := newTestService(store)

	err := service.Process(context.Background(), Event{
		Event: EventDepositSuccess,
		ID:    "evt-dep",
		Data: EventData{
			Reference:     "DEP-1",
			Amount:        decimal.RequireFromString("25.00"),
			AccountNumber: "0000000000",
		},
	})
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	service := newTestService(ledger.NewInMemory())
	body := []byte(`{"event":"transfer.success"}`)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	valid := hex.EncodeToString(mac.Sum(nil))

	if !service.VerifySignature(body, valid) {
		t.Fatal("expected valid signature to verify")
	}
	if service.VerifySignature(body, "deadbeef") {
		t.Fatal("expected tampered signature to fail")
	}
	if service.VerifySignature(body, "") {
		t.Fatal("expected empty signature to fail")
	}
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	seedPendingTransfer(t, store, account, "60.00", "TRF-abc")
	service := newTestService(store)
	handler := NewHandler(service, logging.Discard())

	app := fiber.New()
	app.Post("/webhooks/payments", handler.Receive)

	body := []byte(`{"event":"transfer.success","id":"evt-1","data":{"reference":"TRF-abc"}}`)

	req := httptest.NewRequest(fiber.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "forged")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	req = httptest.NewRequest(fiber.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
