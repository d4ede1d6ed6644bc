package gateway

import (
	"context"
	"errors"
	"math/rand"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnavailable indicates the payment processor rejected or could not
	// service the request. The local debit must be compensated.
	ErrUnavailable = errors.New("payment gateway unavailable")

	// ErrTimeout indicates the processor did not answer in time. The outcome is
	// unknown: the transaction stays pending until reconciliation resolves it.
	ErrTimeout = errors.New("payment gateway timeout")
)

const (
	// StatusSuccess is reported for settled transfers.
	StatusSuccess = "success"
	// StatusFailed is reported for transfers the processor could not complete.
	StatusFailed = "failed"
	// StatusPending is reported while the processor is still working.
	StatusPending = "pending"
)

// CreateAccountInput carries the customer details the processor needs to
// provision a virtual account.
type CreateAccountInput struct {
	FirstName string
	LastName  string
	Phone     string
	Email     string
}

// CreatedAccount is the processor-side account backing a wallet.
type CreatedAccount struct {
	AccountNumber string
	BankName      string
}

// TransferInput describes an outbound transfer. Reference doubles as the
// idempotency key on the processor side, so retrying a call cannot move money
// twice.
type TransferInput struct {
	Amount        decimal.Decimal
	AccountNumber string
	BankName      string
	Narration     string
	Reference     string
}

// TransferResult captures the processor's synchronous answer.
type TransferResult struct {
	Status string
}

// Client connects to the external payment processor. It is the only path by
// which money enters or leaves the custodial pool.
type Client interface {
	CreateAccount(ctx context.Context, input CreateAccountInput) (CreatedAccount, error)
	TransferFunds(ctx context.Context, input TransferInput) (TransferResult, error)
	// VerifyTransfer re-derives the outcome of a previously initiated transfer,
	// used by the reconciliation sweep for stuck pending transactions.
	VerifyTransfer(ctx context.Context, reference string) (TransferResult, error)
}

// StaticClient simulates a processor for development and tests. The zero value
// approves everything; TransferErr forces the failure paths.
type StaticClient struct {
	// TransferErr, when set, is returned from TransferFunds.
	TransferErr error
	// VerifyStatus, when set, is returned from VerifyTransfer.
	VerifyStatus string
}

// CreateAccount provisions a synthetic ten-digit account number.
func (c *StaticClient) CreateAccount(_ context.Context, _ CreateAccountInput) (CreatedAccount, error) {
	digits := make([]byte, 10)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return CreatedAccount{AccountNumber: string(digits), BankName: "Kobo MFB"}, nil
}

// TransferFunds approves the transfer unless TransferErr is set.
func (c *StaticClient) TransferFunds(_ context.Context, _ TransferInput) (TransferResult, error) {
	if c.TransferErr != nil {
		return TransferResult{}, c.TransferErr
	}
	return TransferResult{Status: StatusSuccess}, nil
}

// VerifyTransfer reports VerifyStatus, defaulting to success.
func (c *StaticClient) VerifyTransfer(_ context.Context, _ string) (TransferResult, error) {
	if c.VerifyStatus != "" {
		return TransferResult{Status: c.VerifyStatus}, nil
	}
	return TransferResult{Status: StatusSuccess}, nil
}
