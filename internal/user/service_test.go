package user

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Register(ctx, Credentials{
		FullName: "Ada Obi",
		Email:    "Ada@Example.com",
		Phone:    "+2348030000000",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %s", created.Email)
	}

	authed, err := svc.Authenticate(ctx, "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != created.ID {
		t.Fatalf("expected same user, got %s vs %s", authed.ID, created.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	creds := Credentials{Email: "ada@example.com", Password: "correct-horse"}
	if _, err := svc.Register(ctx, creds); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, creds); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Email: "ada@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestBumpTokenVersion(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.Register(ctx, Credentials{Email: "ada@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	next, err := svc.BumpTokenVersion(ctx, created.ID)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if next != 1 {
		t.Fatalf("expected version 1, got %d", next)
	}

	got, _ := svc.Get(ctx, created.ID)
	if got.TokenVersion != 1 {
		t.Fatalf("expected stored version 1, got %d", got.TokenVersion)
	}
}
