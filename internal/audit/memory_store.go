package audit

import (
	"context"
	"sync"
	"time"

	"github.com/requestdirectory/gateway/internal/ledger"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*RequestRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*RequestRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *RequestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *rec
	clone.Status = StatusPending
	clone.CreatedAt = time.Now()
	s.records[rec.ID] = &clone
	rec.Status = clone.Status
	rec.CreatedAt = clone.CreatedAt
	return nil
}

func (s *MemoryStore) MarkSuccess(ctx context.Context, id string, actualCost ledger.Amount, responsePayload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if rec.Status != StatusPending {
		return ErrAlreadyFinal
	}
	now := time.Now()
	rec.Status = StatusSuccess
	rec.ActualCost = &actualCost
	rec.ResponsePayload = responsePayload
	rec.CompletedAt = &now
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	if rec.Status != StatusPending {
		return ErrAlreadyFinal
	}
	now := time.Now()
	zero := ledger.Amount(0)
	rec.Status = StatusFailed
	rec.ActualCost = &zero
	rec.CompletedAt = &now
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*RequestRecord
	for _, rec := range s.records {
		if rec.Status == StatusPending && rec.CreatedAt.Before(cutoff) {
			clone := *rec
			recs = append(recs, &clone)
		}
	}
	return recs, nil
}

// SetCreatedAt backdates a record. Test helper for the reconciliation sweep.
func (s *MemoryStore) SetCreatedAt(id string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.CreatedAt = t
	}
}
