package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kobopay/kobo_pay/internal/gateway"
	"github.com/kobopay/kobo_pay/internal/ledger"
	"github.com/kobopay/kobo_pay/internal/logging"
	"github.com/kobopay/kobo_pay/internal/notification"
)

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

func newTestService(store ledger.Store, gw gateway.Client) *Service {
	return NewService(store, gw, notification.NewMemoryStore(), logging.Discard(), time.Second)
}

func TestServiceTransferCompletes(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	service := newTestService(store, &gateway.StaticClient{})

	txn, err := service.Transfer(ctx, Input{
		OwnerID:                account.OwnerID,
		Amount:                 decimal.RequireFromString("60.00"),
		RecipientAccountNumber: "0123456789",
		RecipientBank:          "First Bank",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if txn.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed, got %s", txn.Status)
	}
	if txn.Reference == "" {
		t.Fatal("expected a generated reference")
	}

	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("expected balance 40.00, got %s", got.Balance)
	}
}

func TestServiceTransferReferencesAreUnique(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	service := newTestService(store, &gateway.StaticClient{})

	refs := make(map[string]bool)
	for i := 0; i < 5; i++ {
		txn, err := service.Transfer(ctx, Input{
			OwnerID:                account.OwnerID,
			Amount:                 decimal.RequireFromString("1.00"),
			RecipientAccountNumber: "0123456789",
		})
		if err != nil {
			t.Fatalf("transfer %d: %v", i, err)
		}
		if refs[txn.Reference] {
			t.Fatalf("reference %s reused", txn.Reference)
		}
		refs[txn.Reference] = true
	}
}

func TestServiceTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "50.00")
	service := newTestService(store, &gateway.StaticClient{})

	_, err := service.Transfer(ctx, Input{
		OwnerID:                account.OwnerID,
		Amount:                 decimal.RequireFromString("60.00"),
		RecipientAccountNumber: "0123456789",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	// Nothing to compensate: no transaction row, balance untouched.
	txns, _ := store.Transactions(ctx, ledger.TransactionFilter{AccountID: account.ID})
	if len(txns) != 0 {
		t.Fatalf("expected no transaction rows, got %d", len(txns))
	}
	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("balance mutated: %s", got.Balance)
	}
}

func TestServiceTransferGatewayFailureRefunds(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	service := newTestService(store, &gateway.StaticClient{TransferErr: gateway.ErrUnavailable})

	txn, err := service.Transfer(ctx, Input{
		OwnerID:                account.OwnerID,
		Amount:                 decimal.RequireFromString("60.00"),
		RecipientAccountNumber: "0123456789",
	})
	if err != nil {
		t.Fatalf("transfer surfaced an error instead of a failed transaction: %v", err)
	}
	if txn.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", txn.Status)
	}

	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected refund to restore 100.00, got %s", got.Balance)
	}
}

func TestServiceTransferTimeoutLeavesPending(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	service := newTestService(store, &gateway.StaticClient{TransferErr: gateway.ErrTimeout})

	txn, err := service.Transfer(ctx, Input{
		OwnerID:                account.OwnerID,
		Amount:                 decimal.RequireFromString("60.00"),
		RecipientAccountNumber: "0123456789",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if txn.Status != ledger.StatusPending {
		t.Fatalf("timeout must leave the transaction pending, got %s", txn.Status)
	}

	// The debit stands until reconciliation decides the outcome.
	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("expected balance 40.00 while pending, got %s", got.Balance)
	}
}

func TestServiceWithdrawTargetsOwnAccount(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")
	service := newTestService(store, &gateway.StaticClient{})

	txn, err := service.Withdraw(ctx, Input{
		OwnerID: account.OwnerID,
		Amount:  decimal.RequireFromString("25.00"),
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if txn.Type != ledger.TypeWithdrawal {
		t.Fatalf("expected withdrawal type, got %s", txn.Type)
	}
	if txn.RecipientAccountNumber != account.AccountNumber {
		t.Fatalf("withdrawal must target the owner's account, got %s", txn.RecipientAccountNumber)
	}
}

func TestServiceSweepResolvesStuckPending(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	account := seedAccount(t, store, "100.00")

	// Leave a pending transaction behind via a gateway timeout.
	timeoutSvc := newTestService(store, &gateway.StaticClient{TransferErr: gateway.ErrTimeout})
	pending, err := timeoutSvc.Transfer(ctx, Input{
		OwnerID:                account.OwnerID,
		Amount:                 decimal.RequireFromString("60.00"),
		RecipientAccountNumber: "0123456789",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// The sweep verifies against the gateway; here the processor says failed.
	sweepSvc := newTestService(store, &gateway.StaticClient{VerifyStatus: gateway.StatusFailed})
	resolved, err := sweepSvc.SweepPending(ctx, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 resolved transaction, got %d", resolved)
	}

	txn, err := store.TransactionByReference(ctx, pending.Reference)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if txn.Status != ledger.StatusFailed {
		t.Fatalf("expected failed after sweep, got %s", txn.Status)
	}
	got, _ := store.AccountByID(ctx, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected sweep refund to restore 100.00, got %s", got.Balance)
	}
}
