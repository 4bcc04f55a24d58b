package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount(t *testing.T) {
	assert.Equal(t, Amount(5000), FromUSD(0.005))
	assert.Equal(t, Amount(10_000_000), FromUSD(10))
	assert.InDelta(t, 0.005, FromUSD(0.005).USD(), 1e-9)
}

func TestReserve(t *testing.T) {
	s := NewMemoryStore()
	s.CreateAccount("acct-1", FromUSD(10))
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "acct-1", "req-1", FromUSD(0.005)))

	balance, err := s.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, FromUSD(9.995), balance)
}

func TestReserve_InsufficientFunds(t *testing.T) {
	s := NewMemoryStore()
	s.CreateAccount("acct-1", FromUSD(0.003))
	ctx := context.Background()

	err := s.Reserve(ctx, "acct-1", "req-1", FromUSD(0.005))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// A failed reservation leaves no entry behind.
	entries, err := s.EntriesByRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	balance, err := s.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, FromUSD(0.003), balance)
}

func TestReserve_UnknownAccount(t *testing.T) {
	s := NewMemoryStore()
	err := s.Reserve(context.Background(), "nope", "req-1", FromUSD(1))
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestReserve_ReplayIsNoop(t *testing.T) {
	s := NewMemoryStore()
	s.CreateAccount("acct-1", FromUSD(10))
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "acct-1", "req-1", FromUSD(0.005)))
	require.NoError(t, s.Reserve(ctx, "acct-1", "req-1", FromUSD(0.005)))

	balance, err := s.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, FromUSD(9.995), balance)

	entries, err := s.EntriesByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ReasonReserve, entries[0].Reason)
	assert.Equal(t, -FromUSD(0.005), entries[0].Delta)
}

func TestRefund_RestoresBalance(t *testing.T) {
	s := NewMemoryStore()
	s.CreateAccount("acct-1", FromUSD(10))
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "acct-1", "req-1", FromUSD(0.005)))
	require.NoError(t, s.Refund(ctx, "acct-1", "req-1", FromUSD(0.005)))

	balance, err := s.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, FromUSD(10), balance)

	// Entries for a refunded request net to zero.
	entries, err := s.EntriesByRequest(ctx, "req-1")
	require.NoError(t, err)
	var net Amount
	for _, e := range entries {
		net += e.Delta
	}
	assert.Equal(t, Amount(0), net)
}

func TestSettleAdjustment_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	s.CreateAccount("acct-1", FromUSD(10))
	ctx := context.Background()

	require.NoError(t, s.Reserve(ctx, "acct-1", "req-1", FromUSD(0.005)))
	require.NoError(t, s.SettleAdjustment(ctx, "acct-1", "req-1", FromUSD(0.001)))
	require.NoError(t, s.SettleAdjustment(ctx, "acct-1", "req-1", FromUSD(0.001)))

	balance, err := s.Balance(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, FromUSD(9.996), balance)
}

func TestSettleAdjustment_NegativeDeltaNeedsCover(t *testing.T) {
	s := NewMemoryStore()
	s.CreateAccount("acct-1", FromUSD(0.001))
	ctx := context.Background()

	err := s.SettleAdjustment(ctx, "acct-1", "req-1", -FromUSD(0.005))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

// Two concurrent reservations that each need the whole balance: exactly one
// must win and the final balance must be zero, never negative.
func TestReserve_NoDoubleReservation(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := NewMemoryStore()
		s.CreateAccount("acct-1", FromUSD(1))

		var wg sync.WaitGroup
		results := make([]error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				results[j] = s.Reserve(context.Background(), "acct-1", []string{"req-a", "req-b"}[j], FromUSD(1))
			}(j)
		}
		wg.Wait()

		var wins, losses int
		for _, err := range results {
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, ErrInsufficientFunds) {
				losses++
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, losses)

		balance, err := s.Balance(context.Background(), "acct-1")
		require.NoError(t, err)
		assert.Equal(t, Amount(0), balance)
	}
}
