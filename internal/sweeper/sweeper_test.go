package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestdirectory/gateway/internal/audit"
	"github.com/requestdirectory/gateway/internal/ledger"
)

func reserved(t *testing.T, lg *ledger.MemoryStore, au *audit.MemoryStore, accountID, requestID string, price ledger.Amount) {
	t.Helper()
	require.NoError(t, lg.Reserve(context.Background(), accountID, requestID, price))
	require.NoError(t, au.Create(context.Background(), &audit.RequestRecord{
		ID:            requestID,
		AccountID:     accountID,
		Provider:      "tiktok-dl",
		EstimatedCost: price,
	}))
}

func TestSweepRefundsStalePending(t *testing.T) {
	lg := ledger.NewMemoryStore()
	au := audit.NewMemoryStore()
	lg.CreateAccount("acct-1", ledger.FromUSD(10))

	price := ledger.FromUSD(0.005)
	reserved(t, lg, au, "acct-1", "req-stale", price)
	au.SetCreatedAt("req-stale", time.Now().Add(-time.Hour))

	s := New(lg, au, 10*time.Minute, "@every 1m")
	require.NoError(t, s.Sweep(context.Background()))

	balance, err := lg.Balance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.FromUSD(10), balance, "reservation should be fully refunded")

	rec, err := au.Get(context.Background(), "req-stale")
	require.NoError(t, err)
	assert.Equal(t, audit.StatusFailed, rec.Status)
	require.NotNil(t, rec.ActualCost)
	assert.Equal(t, ledger.Amount(0), *rec.ActualCost)
}

func TestSweepLeavesFreshPendingAlone(t *testing.T) {
	lg := ledger.NewMemoryStore()
	au := audit.NewMemoryStore()
	lg.CreateAccount("acct-1", ledger.FromUSD(10))

	price := ledger.FromUSD(0.005)
	reserved(t, lg, au, "acct-1", "req-fresh", price)

	s := New(lg, au, 10*time.Minute, "@every 1m")
	require.NoError(t, s.Sweep(context.Background()))

	balance, err := lg.Balance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.FromUSD(10)-price, balance, "in-flight reservation must stay debited")

	rec, err := au.Get(context.Background(), "req-fresh")
	require.NoError(t, err)
	assert.Equal(t, audit.StatusPending, rec.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	lg := ledger.NewMemoryStore()
	au := audit.NewMemoryStore()
	lg.CreateAccount("acct-1", ledger.FromUSD(10))

	reserved(t, lg, au, "acct-1", "req-stale", ledger.FromUSD(0.005))
	au.SetCreatedAt("req-stale", time.Now().Add(-time.Hour))

	s := New(lg, au, 10*time.Minute, "@every 1m")
	require.NoError(t, s.Sweep(context.Background()))
	require.NoError(t, s.Sweep(context.Background()))

	balance, err := lg.Balance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.FromUSD(10), balance, "second sweep must not double-credit")
}

func TestSweepRacingLiveRequest(t *testing.T) {
	// A request that already refunded itself (failed upstream) but whose
	// record is still pending: the sweep's refund is a replay no-op.
	lg := ledger.NewMemoryStore()
	au := audit.NewMemoryStore()
	lg.CreateAccount("acct-1", ledger.FromUSD(10))

	price := ledger.FromUSD(0.005)
	reserved(t, lg, au, "acct-1", "req-raced", price)
	require.NoError(t, lg.Refund(context.Background(), "acct-1", "req-raced", price))
	au.SetCreatedAt("req-raced", time.Now().Add(-time.Hour))

	s := New(lg, au, 10*time.Minute, "@every 1m")
	require.NoError(t, s.Sweep(context.Background()))

	balance, err := lg.Balance(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.FromUSD(10), balance)
}
