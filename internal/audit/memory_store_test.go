package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestdirectory/gateway/internal/ledger"
)

func newPending(t *testing.T, s *MemoryStore, id string) *RequestRecord {
	t.Helper()
	rec := &RequestRecord{
		ID:            id,
		AccountID:     "acct-1",
		Provider:      "tiktok-dl",
		EstimatedCost: ledger.FromUSD(0.005),
	}
	require.NoError(t, s.Create(context.Background(), rec))
	return rec
}

func TestCreate_StartsPending(t *testing.T) {
	s := NewMemoryStore()
	rec := newPending(t, s, "req-1")
	assert.Equal(t, StatusPending, rec.Status)

	got, err := s.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.ActualCost)
}

func TestMarkSuccess(t *testing.T) {
	s := NewMemoryStore()
	newPending(t, s, "req-1")
	ctx := context.Background()

	require.NoError(t, s.MarkSuccess(ctx, "req-1", ledger.FromUSD(0.005), nil))

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	require.NotNil(t, got.ActualCost)
	assert.Equal(t, ledger.FromUSD(0.005), *got.ActualCost)
	assert.NotNil(t, got.CompletedAt)
}

func TestMarkFailed_ZeroCost(t *testing.T) {
	s := NewMemoryStore()
	newPending(t, s, "req-1")
	ctx := context.Background()

	require.NoError(t, s.MarkFailed(ctx, "req-1"))

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.ActualCost)
	assert.Equal(t, ledger.Amount(0), *got.ActualCost)
}

// A record leaves pending at most once.
func TestTransitionAtMostOnce(t *testing.T) {
	s := NewMemoryStore()
	newPending(t, s, "req-1")
	ctx := context.Background()

	require.NoError(t, s.MarkSuccess(ctx, "req-1", ledger.FromUSD(0.005), nil))
	assert.ErrorIs(t, s.MarkFailed(ctx, "req-1"), ErrAlreadyFinal)
	assert.ErrorIs(t, s.MarkSuccess(ctx, "req-1", ledger.FromUSD(0.005), nil), ErrAlreadyFinal)

	got, err := s.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
}

func TestMark_UnknownRecord(t *testing.T) {
	s := NewMemoryStore()
	assert.ErrorIs(t, s.MarkFailed(context.Background(), "nope"), ErrRecordNotFound)
}

func TestListPendingBefore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	newPending(t, s, "stale")
	newPending(t, s, "fresh")
	newPending(t, s, "settled")
	require.NoError(t, s.MarkSuccess(ctx, "settled", ledger.FromUSD(0.005), nil))
	s.SetCreatedAt("stale", time.Now().Add(-time.Hour))

	recs, err := s.ListPendingBefore(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "stale", recs[0].ID)
}
