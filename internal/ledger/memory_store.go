package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local runs without a
// database. It is safe for concurrent use; the mutex plays the role the
// conditional update plays in the Postgres implementation.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]Amount
	applied  map[entryKey]struct{}
	entries  []Entry
}

type entryKey struct {
	requestID string
	reason    Reason
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]Amount),
		applied:  make(map[entryKey]struct{}),
	}
}

// CreateAccount registers an account with a starting balance.
func (s *MemoryStore) CreateAccount(accountID string, balance Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[accountID] = balance
}

func (s *MemoryStore) Balance(ctx context.Context, accountID string) (Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, accountID, requestID string, amount Amount) error {
	return s.apply(accountID, requestID, ReasonReserve, -amount)
}

func (s *MemoryStore) Refund(ctx context.Context, accountID, requestID string, amount Amount) error {
	return s.apply(accountID, requestID, ReasonRefund, amount)
}

func (s *MemoryStore) SettleAdjustment(ctx context.Context, accountID, requestID string, delta Amount) error {
	return s.apply(accountID, requestID, ReasonSettle, delta)
}

func (s *MemoryStore) apply(accountID, requestID string, reason Reason, delta Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.applied[entryKey{requestID, reason}]; done {
		return nil
	}

	balance, ok := s.balances[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if balance+delta < 0 {
		return ErrInsufficientFunds
	}

	s.balances[accountID] = balance + delta
	s.applied[entryKey{requestID, reason}] = struct{}{}
	s.entries = append(s.entries, Entry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		RequestID: requestID,
		Reason:    reason,
		Delta:     delta,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryStore) EntriesByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []Entry
	for _, e := range s.entries {
		if e.RequestID == requestID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
