package auth

import (
	"context"
	"testing"
	"time"

	"github.com/kobopay/kobo_pay/internal/config"
	"github.com/kobopay/kobo_pay/internal/user"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}
}

func registerUser(t *testing.T, repo user.Repository) user.User {
	t.Helper()
	u, err := user.NewService(repo).Register(context.Background(), user.Credentials{
		Email:    "ada@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	cfg := testConfig()
	repo := user.NewMemoryRepository()
	u := registerUser(t, repo)
	svc := NewService(cfg, repo)

	pair, err := svc.Login(u)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := ParseAndVerifyHS256(pair.AccessToken, []byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if sub, _ := claims["sub"].(string); sub != u.ID {
		t.Fatalf("expected sub %s, got %v", u.ID, claims["sub"])
	}
	if _, err := ParseAndVerifyHS256(pair.AccessToken, []byte("wrong-secret")); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestRefreshReturnsNewAccessToken(t *testing.T) {
	cfg := testConfig()
	repo := user.NewMemoryRepository()
	u := registerUser(t, repo)
	svc := NewService(cfg, repo)

	pair, err := svc.Login(u)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	token, expires, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if expires != int64(cfg.AccessTokenTTL.Seconds()) {
		t.Fatalf("unexpected expiry %d", expires)
	}
	if _, err := ParseAndVerifyHS256(token, []byte(cfg.JWTSecret)); err != nil {
		t.Fatalf("verify refreshed token: %v", err)
	}
}

func TestLogoutInvalidatesRefresh(t *testing.T) {
	cfg := testConfig()
	repo := user.NewMemoryRepository()
	u := registerUser(t, repo)
	svc := NewService(cfg, repo)

	pair, err := svc.Login(u)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(context.Background(), u.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); err == nil {
		t.Fatal("expected refresh to fail after logout")
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc := NewService(testConfig(), user.NewMemoryRepository())
	if _, _, err := svc.Refresh(context.Background(), "not.a.token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
