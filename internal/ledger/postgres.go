package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const accountColumns = `id, owner_id, external_account_number, balance::text, currency, bank_name, created_at, updated_at`

const transactionColumns = `id, type, status, amount::text, account_id,
        reference,
        COALESCE(from_account_id::text, ''), COALESCE(to_account_id::text, ''),
        COALESCE(recipient_account_number, ''), COALESCE(recipient_bank, ''),
        COALESCE(description, ''), COALESCE(external_event_id, ''),
        created_at, updated_at`

// PostgresStore persists accounts and transactions in PostgreSQL. Balance
// mutations take the account row lock so concurrent debits serialize and the
// funds check can never pass against a stale balance.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateAccount inserts an account row.
func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) (Account, error) {
	accountID, err := uuid.Parse(account.ID)
	if err != nil {
		return Account{}, err
	}
	ownerID, err := uuid.Parse(account.OwnerID)
	if err != nil {
		return Account{}, err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `INSERT INTO accounts (id, owner_id, external_account_number, balance, currency, bank_name, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		accountID, ownerID, account.AccountNumber, account.Balance.String(), account.Currency, account.BankName, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Account{}, ErrAccountExists
		}
		return Account{}, err
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	return account, nil
}

// AccountByID fetches an account by its identifier.
func (s *PostgresStore) AccountByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

// AccountByOwner fetches the single account belonging to an owner.
func (s *PostgresStore) AccountByOwner(ctx context.Context, ownerID string) (Account, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1`, owner)
	return scanAccount(row)
}

// AccountByNumber fetches an account by the processor-assigned account number.
func (s *PostgresStore) AccountByNumber(ctx context.Context, accountNumber string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE external_account_number = $1`, accountNumber)
	return scanAccount(row)
}

// AdjustBalance applies delta to the account balance under the row lock.
func (s *PostgresStore) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) (Account, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Account{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	account, err := s.adjustBalanceTx(ctx, tx, accountID, delta)
	if err != nil {
		return Account{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Account{}, err
	}
	return account, nil
}

// DebitWithTransaction appends the pending transaction row and debits the
// account in one database transaction.
func (s *PostgresStore) DebitWithTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	if !txn.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	account, err := lockAccount(ctx, tx, txn.AccountID)
	if err != nil {
		return Transaction{}, err
	}
	if account.Balance.LessThan(txn.Amount) {
		return Transaction{}, ErrInsufficientFunds
	}

	txn.Status = StatusPending
	inserted, err := insertTransaction(ctx, tx, txn)
	if err != nil {
		return Transaction{}, err
	}

	newBalance := account.Balance.Sub(txn.Amount)
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		newBalance.String(), account.ID); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return inserted, nil
}

// Resolve moves the referenced transaction to a terminal status, stamping the
// resolution fields and crediting the refund when requested. The transaction
// row lock is taken first so the synchronous path and the webhook path cannot
// both win the race to resolve.
func (s *PostgresStore) Resolve(ctx context.Context, reference, status string, res Resolution) (Transaction, error) {
	if !Terminal(status) {
		return Transaction{}, fmt.Errorf("%w: %s is not a terminal status", ErrInvalidTransition, status)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference)
	current, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, err
	}
	if Terminal(current.Status) {
		return current, ErrInvalidTransition
	}

	updatedRow := tx.QueryRow(ctx, `UPDATE transactions SET
            status = $2,
            recipient_account_number = COALESCE(NULLIF($3, ''), recipient_account_number),
            recipient_bank = COALESCE(NULLIF($4, ''), recipient_bank),
            description = COALESCE(NULLIF($5, ''), description),
            external_event_id = COALESCE(NULLIF($6, ''), external_event_id),
            updated_at = now()
        WHERE reference = $1
        RETURNING `+transactionColumns,
		reference, status, res.RecipientAccountNumber, res.RecipientBank, res.Description, res.EventID)
	updated, err := scanTransaction(updatedRow)
	if err != nil {
		return Transaction{}, err
	}

	if res.Refund {
		if _, err := s.adjustBalanceTx(ctx, tx, updated.AccountID, updated.Amount); err != nil {
			return Transaction{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return updated, nil
}

// RecordDeposit credits the account and appends the completed deposit row in
// one database transaction.
func (s *PostgresStore) RecordDeposit(ctx context.Context, txn Transaction) (Transaction, error) {
	if !txn.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Transaction{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	account, err := lockAccount(ctx, tx, txn.AccountID)
	if err != nil {
		return Transaction{}, err
	}

	txn.Status = StatusCompleted
	inserted, err := insertTransaction(ctx, tx, txn)
	if err != nil {
		return Transaction{}, err
	}

	newBalance := account.Balance.Add(txn.Amount)
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		newBalance.String(), account.ID); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, err
	}
	return inserted, nil
}

// TransactionByReference fetches a transaction by its unique reference.
func (s *PostgresStore) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	return scanTransaction(row)
}

// TransactionByEventID fetches a transaction by the processor event that
// resolved it.
func (s *PostgresStore) TransactionByEventID(ctx context.Context, eventID string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE external_event_id = $1`, eventID)
	return scanTransaction(row)
}

// Transactions lists transactions matching the filter, newest first.
func (s *PostgresStore) Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.AccountID != "" {
		accountID, err := uuid.Parse(filter.AccountID)
		if err != nil {
			return nil, ErrAccountNotFound
		}
		add("account_id = $%d", accountID)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Reference != "" {
		add("reference = $%d", filter.Reference)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// PendingOlderThan lists pending transactions created before horizon.
func (s *PostgresStore) PendingOlderThan(ctx context.Context, horizon time.Time) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE status = $1 AND created_at < $2 ORDER BY created_at`, StatusPending, horizon.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (s *PostgresStore) adjustBalanceTx(ctx context.Context, tx pgx.Tx, accountID string, delta decimal.Decimal) (Account, error) {
	account, err := lockAccount(ctx, tx, accountID)
	if err != nil {
		return Account{}, err
	}
	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return Account{}, ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = now() WHERE id = $2`,
		newBalance.String(), account.ID); err != nil {
		return Account{}, err
	}
	account.Balance = newBalance
	return account, nil
}

func lockAccount(ctx context.Context, tx pgx.Tx, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
	return scanAccount(row)
}

func insertTransaction(ctx context.Context, tx pgx.Tx, txn Transaction) (Transaction, error) {
	txnID, err := uuid.Parse(txn.ID)
	if err != nil {
		return Transaction{}, err
	}
	accountID, err := uuid.Parse(txn.AccountID)
	if err != nil {
		return Transaction{}, ErrAccountNotFound
	}
	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `INSERT INTO transactions
            (id, type, status, amount, account_id, reference, from_account_id, to_account_id,
             recipient_account_number, recipient_bank, description, external_event_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::uuid, NULLIF($8, '')::uuid,
                NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $13)`,
		txnID, txn.Type, txn.Status, txn.Amount.String(), accountID, txn.Reference,
		txn.FromAccountID, txn.ToAccountID, txn.RecipientAccountNumber, txn.RecipientBank,
		txn.Description, txn.EventID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, err
	}
	txn.CreatedAt = now
	txn.UpdatedAt = now
	return txn, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id        uuid.UUID
		ownerID   uuid.UUID
		balance   string
		account   Account
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&id, &ownerID, &account.AccountNumber, &balance, &account.Currency, &account.BankName, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	account.ID = id.String()
	account.OwnerID = ownerID.String()
	account.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("parse balance: %w", err)
	}
	account.CreatedAt = createdAt.UTC()
	account.UpdatedAt = updatedAt.UTC()
	return account, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		id        uuid.UUID
		accountID uuid.UUID
		amount    string
		txn       Transaction
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&id, &txn.Type, &txn.Status, &amount, &accountID, &txn.Reference,
		&txn.FromAccountID, &txn.ToAccountID, &txn.RecipientAccountNumber, &txn.RecipientBank,
		&txn.Description, &txn.EventID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	txn.ID = id.String()
	txn.AccountID = accountID.String()
	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	txn.CreatedAt = createdAt.UTC()
	txn.UpdatedAt = updatedAt.UTC()
	return txn, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	var txns []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}
