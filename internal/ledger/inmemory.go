package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type inMemoryStore struct {
	mu           sync.Mutex
	accounts     map[string]Account
	byOwner      map[string]string
	byNumber     map[string]string
	transactions map[string]Transaction
	byEventID    map[string]string
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit
// tests. One mutex guards all state, which gives the same serialization the
// Postgres row locks provide.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:     make(map[string]Account),
		byOwner:      make(map[string]string),
		byNumber:     make(map[string]string),
		transactions: make(map[string]Transaction),
		byEventID:    make(map[string]string),
	}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, account Account) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byOwner[account.OwnerID]; exists {
		return Account{}, ErrAccountExists
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	s.accounts[account.ID] = account
	s.byOwner[account.OwnerID] = account.ID
	s.byNumber[account.AccountNumber] = account.ID
	return account, nil
}

func (s *inMemoryStore) AccountByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(id)
}

func (s *inMemoryStore) AccountByOwner(_ context.Context, ownerID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(s.byOwner[ownerID])
}

func (s *inMemoryStore) AccountByNumber(_ context.Context, accountNumber string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(s.byNumber[accountNumber])
}

func (s *inMemoryStore) AdjustBalance(_ context.Context, accountID string, delta decimal.Decimal) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustBalance(accountID, delta)
}

func (s *inMemoryStore) DebitWithTransaction(_ context.Context, txn Transaction) (Transaction, error) {
	if !txn.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.account(txn.AccountID)
	if err != nil {
		return Transaction{}, err
	}
	if _, exists := s.transactions[txn.Reference]; exists {
		return Transaction{}, ErrDuplicateReference
	}
	if account.Balance.LessThan(txn.Amount) {
		return Transaction{}, ErrInsufficientFunds
	}

	txn.Status = StatusPending
	s.append(&txn)
	account.Balance = account.Balance.Sub(txn.Amount)
	account.UpdatedAt = txn.UpdatedAt
	s.accounts[account.ID] = account
	return txn, nil
}

func (s *inMemoryStore) Resolve(_ context.Context, reference, status string, res Resolution) (Transaction, error) {
	if !Terminal(status) {
		return Transaction{}, ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, exists := s.transactions[reference]
	if !exists {
		return Transaction{}, ErrTransactionNotFound
	}
	if Terminal(txn.Status) {
		return txn, ErrInvalidTransition
	}

	txn.Status = status
	if res.RecipientAccountNumber != "" {
		txn.RecipientAccountNumber = res.RecipientAccountNumber
	}
	if res.RecipientBank != "" {
		txn.RecipientBank = res.RecipientBank
	}
	if res.Description != "" {
		txn.Description = res.Description
	}
	if res.EventID != "" {
		txn.EventID = res.EventID
		s.byEventID[res.EventID] = reference
	}
	txn.UpdatedAt = time.Now().UTC()
	s.transactions[reference] = txn

	if res.Refund {
		if _, err := s.adjustBalance(txn.AccountID, txn.Amount); err != nil {
			return Transaction{}, err
		}
	}
	return txn, nil
}

func (s *inMemoryStore) RecordDeposit(_ context.Context, txn Transaction) (Transaction, error) {
	if !txn.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.account(txn.AccountID)
	if err != nil {
		return Transaction{}, err
	}
	if _, exists := s.transactions[txn.Reference]; exists {
		return Transaction{}, ErrDuplicateReference
	}

	txn.Status = StatusCompleted
	s.append(&txn)
	account.Balance = account.Balance.Add(txn.Amount)
	account.UpdatedAt = txn.UpdatedAt
	s.accounts[account.ID] = account
	return txn, nil
}

func (s *inMemoryStore) TransactionByReference(_ context.Context, reference string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, exists := s.transactions[reference]
	if !exists {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, nil
}

func (s *inMemoryStore) TransactionByEventID(_ context.Context, eventID string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reference, exists := s.byEventID[eventID]
	if !exists {
		return Transaction{}, ErrTransactionNotFound
	}
	return s.transactions[reference], nil
}

func (s *inMemoryStore) Transactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txns []Transaction
	for _, txn := range s.transactions {
		if filter.AccountID != "" && txn.AccountID != filter.AccountID {
			continue
		}
		if filter.Type != "" && txn.Type != filter.Type {
			continue
		}
		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}
		if filter.Reference != "" && txn.Reference != filter.Reference {
			continue
		}
		txns = append(txns, txn)
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	if filter.Limit > 0 && len(txns) > filter.Limit {
		txns = txns[:filter.Limit]
	}
	return txns, nil
}

func (s *inMemoryStore) PendingOlderThan(_ context.Context, horizon time.Time) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txns []Transaction
	for _, txn := range s.transactions {
		if txn.Status == StatusPending && txn.CreatedAt.Before(horizon) {
			txns = append(txns, txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.Before(txns[j].CreatedAt) })
	return txns, nil
}

func (s *inMemoryStore) account(id string) (Account, error) {
	account, exists := s.accounts[id]
	if !exists {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *inMemoryStore) adjustBalance(accountID string, delta decimal.Decimal) (Account, error) {
	account, err := s.account(accountID)
	if err != nil {
		return Account{}, err
	}
	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return Account{}, ErrInsufficientFunds
	}
	account.Balance = newBalance
	account.UpdatedAt = time.Now().UTC()
	s.accounts[account.ID] = account
	return account, nil
}

func (s *inMemoryStore) append(txn *Transaction) {
	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	s.transactions[txn.Reference] = *txn
	if txn.EventID != "" {
		s.byEventID[txn.EventID] = txn.Reference
	}
}
