// Package user manages registered wallet owners.
package user

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User represents a registered wallet owner. TokenVersion invalidates
// previously issued refresh tokens when bumped.
type User struct {
	ID           string
	FullName     string
	Email        string
	Phone        string
	PasswordHash []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Credentials carries a registration or login request.
type Credentials struct {
	FullName string
	Email    string
	Phone    string
	Password string
}
