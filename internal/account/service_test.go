package account

import (
	"context"
	"errors"
	"testing"

	"github.com/kobopay/kobo_pay/internal/gateway"
	"github.com/kobopay/kobo_pay/internal/ledger"
	"github.com/kobopay/kobo_pay/internal/logging"
	"github.com/kobopay/kobo_pay/internal/user"
)

func newTestSetup(t *testing.T) (*Service, ledger.Store, user.User) {
	t.Helper()
	repo := user.NewMemoryRepository()
	owner, err := user.NewService(repo).Register(context.Background(), user.Credentials{
		FullName: "Ada Obi",
		Email:    "ada@example.com",
		Phone:    "+2348030000000",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("register owner: %v", err)
	}
	store := ledger.NewInMemory()
	svc := NewService(store, &gateway.StaticClient{}, repo, logging.Discard())
	return svc, store, owner
}

func TestCreateProvisionsAccount(t *testing.T) {
	ctx := context.Background()
	svc, store, owner := newTestSetup(t)

	created, err := svc.Create(ctx, owner.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.AccountNumber == "" || created.BankName == "" {
		t.Fatalf("expected gateway-issued details, got %+v", created)
	}
	if !created.Balance.IsZero() {
		t.Fatalf("expected zero opening balance, got %s", created.Balance)
	}
	if created.Currency != "NGN" {
		t.Fatalf("expected NGN, got %s", created.Currency)
	}

	got, err := store.AccountByNumber(ctx, created.AccountNumber)
	if err != nil {
		t.Fatalf("lookup by number: %v", err)
	}
	if got.OwnerID != owner.ID {
		t.Fatalf("expected owner %s, got %s", owner.ID, got.OwnerID)
	}
}

func TestCreateRejectsSecondAccount(t *testing.T) {
	ctx := context.Background()
	svc, _, owner := newTestSetup(t)

	if _, err := svc.Create(ctx, owner.ID); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(ctx, owner.ID); !errors.Is(err, ledger.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestCreateUnknownOwner(t *testing.T) {
	svc, _, _ := newTestSetup(t)
	if _, err := svc.Create(context.Background(), "missing-owner"); err == nil {
		t.Fatal("expected error for unknown owner")
	}
}

func TestBalanceAndGet(t *testing.T) {
	ctx := context.Background()
	svc, _, owner := newTestSetup(t)

	if _, err := svc.Balance(ctx, owner.ID); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Fatalf("expected not found before provisioning, got %v", err)
	}

	created, err := svc.Create(ctx, owner.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	balance, err := svc.Balance(ctx, owner.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero, got %s", balance)
	}
	got, err := svc.Get(ctx, owner.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected account %s, got %s", created.ID, got.ID)
	}
}
