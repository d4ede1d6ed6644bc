package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound occurs when no account matches the requested lookup key.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists indicates the owner already has an account. One account
	// per owner is an onboarding invariant.
	ErrAccountExists = errors.New("account already exists")

	// ErrInsufficientFunds occurs when a debit would take the account balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount occurs when a transaction amount is zero or negative.
	// Amounts are unsigned by contract; the transaction type determines the
	// direction of the balance effect.
	ErrInvalidAmount = errors.New("transaction amount must be positive")

	// ErrDuplicateReference indicates the transaction reference already exists.
	ErrDuplicateReference = errors.New("duplicate transaction reference")

	// ErrInvalidTransition indicates an attempt to move a transaction out of a
	// terminal status. Reconcilers treat it as an idempotent replay signal.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTransactionNotFound occurs when no transaction matches the reference
	// or event identifier.
	ErrTransactionNotFound = errors.New("transaction not found")
)

const (
	// StatusPending marks a transaction awaiting resolution from the processor.
	StatusPending = "pending"
	// StatusCompleted marks a successfully settled transaction. Terminal.
	StatusCompleted = "completed"
	// StatusFailed marks a transaction that did not settle. Terminal.
	StatusFailed = "failed"
)

const (
	// TypeTransfer moves funds to an external bank account.
	TypeTransfer = "transfer"
	// TypeWithdrawal moves funds back to the owner's own bank account.
	TypeWithdrawal = "withdrawal"
	// TypeDeposit credits funds received from the processor.
	TypeDeposit = "deposit"
)

// Terminal reports whether a status accepts no further transitions.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Account is a single-currency custodial balance owned by one user.
type Account struct {
	ID            string
	OwnerID       string
	AccountNumber string
	Balance       decimal.Decimal
	Currency      string
	BankName      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transaction records one money-movement attempt against an account. Rows are
// append-only: only the status and webhook enrichment fields ever change.
type Transaction struct {
	ID                     string
	Type                   string
	Status                 string
	Amount                 decimal.Decimal
	AccountID              string
	Reference              string
	FromAccountID          string
	ToAccountID            string
	RecipientAccountNumber string
	RecipientBank          string
	Description            string
	EventID                string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Resolution carries the fields applied when a pending transaction reaches a
// terminal status.
type Resolution struct {
	// Refund credits the transaction amount back to the account. Only applied
	// when the transaction is still pending, so a retried failure path or a
	// racing webhook cannot compensate twice.
	Refund                 bool
	RecipientAccountNumber string
	RecipientBank          string
	Description            string
	EventID                string
}

// TransactionFilter narrows history queries. Zero-valued fields are ignored;
// set fields combine as AND.
type TransactionFilter struct {
	AccountID string
	Type      string
	Status    string
	Reference string
	Limit     int
}

// Store is the persistence contract for accounts and their transaction log.
// Operations the transfer protocol requires to be atomic are exposed as single
// store calls so both implementations can run them in one unit of work.
type Store interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	AccountByOwner(ctx context.Context, ownerID string) (Account, error)
	AccountByNumber(ctx context.Context, accountNumber string) (Account, error)

	// AdjustBalance applies delta to the account balance under the account row
	// lock. The update never commits a negative balance.
	AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) (Account, error)

	// DebitWithTransaction appends tx in pending status and debits the account
	// by tx.Amount in the same unit of work. Either both persist or neither.
	// Fails with ErrInvalidAmount unless tx.Amount is positive.
	DebitWithTransaction(ctx context.Context, tx Transaction) (Transaction, error)

	// Resolve transitions the transaction with the given reference to a
	// terminal status, stamping the resolution fields. Fails with
	// ErrInvalidTransition when the transaction is already terminal, returning
	// the current row so callers can classify the replay.
	Resolve(ctx context.Context, reference, status string, res Resolution) (Transaction, error)

	// RecordDeposit credits the account and appends the completed deposit row
	// in the same unit of work. Deposits have no locally pending precursor.
	// Fails with ErrInvalidAmount unless tx.Amount is positive.
	RecordDeposit(ctx context.Context, tx Transaction) (Transaction, error)

	TransactionByReference(ctx context.Context, reference string) (Transaction, error)
	TransactionByEventID(ctx context.Context, eventID string) (Transaction, error)
	Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// PendingOlderThan lists pending transactions created before the horizon,
	// oldest first. These require reconciliation against the processor.
	PendingOlderThan(ctx context.Context, horizon time.Time) ([]Transaction, error)
}
