package storage

import (
	"context"
	"sync"

	"statement-ingestion-service/internal/models"
)

// MemoryStore is an in-memory Store implementation for tests and ephemeral
// runs. The batch append is guarded by the mutex, so a concurrent reader
// never observes a partially written batch.
type MemoryStore struct {
	mutex        sync.RWMutex
	transactions []*models.AccountTransaction

	// FailWith, when set, makes the next CreateTransactions call fail
	// without writing anything. Used to exercise atomicity in tests.
	FailWith error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateTransactions implements Store
func (s *MemoryStore) CreateTransactions(ctx context.Context, records []*models.AccountTransaction) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.FailWith != nil {
		err := s.FailWith
		s.FailWith = nil
		return err
	}

	s.transactions = append(s.transactions, records...)
	return nil
}

// ListByAccount returns an account's committed transactions in insertion
// order
func (s *MemoryStore) ListByAccount(ctx context.Context, accountID int64) ([]*models.AccountTransaction, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*models.AccountTransaction
	for _, t := range s.transactions {
		if t.BankAccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Count returns the total number of stored transactions
func (s *MemoryStore) Count() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.transactions)
}
