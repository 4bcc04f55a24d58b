package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
)

// Amount is a fixed-point currency value in micro-USD.
// $0.005 is Amount(5000).
type Amount int64

func FromUSD(v float64) Amount {
	return Amount(math.Round(v * 1e6))
}

func (a Amount) USD() float64 {
	return float64(a) / 1e6
}

func (a Amount) String() string {
	return fmt.Sprintf("$%.6f", a.USD())
}

// Reason tags a ledger entry with why the delta was applied. Together with
// the request ID it forms the uniqueness key that makes replays no-ops.
type Reason string

const (
	ReasonReserve Reason = "reserve"
	ReasonRefund  Reason = "refund"
	ReasonSettle  Reason = "settle-adjustment"
)

// Entry is an immutable delta applied to an account's balance. The entries
// for a given request net to the request's actual cost, or to zero if it
// failed.
type Entry struct {
	ID        string
	AccountID string
	RequestID string
	Reason    Reason
	Delta     Amount
	CreatedAt time.Time
}

// Store applies balance deltas atomically. Reserve and negative settles are
// conditional updates enforced by the backing store, so two concurrent
// debits against the same account can never both succeed on insufficient
// cover, even across multiple gateway processes.
//
// All mutating operations are idempotent per (requestID, reason): a second
// call with the same pair records nothing and returns nil.
type Store interface {
	Balance(ctx context.Context, accountID string) (Amount, error)
	Reserve(ctx context.Context, accountID, requestID string, amount Amount) error
	Refund(ctx context.Context, accountID, requestID string, amount Amount) error
	SettleAdjustment(ctx context.Context, accountID, requestID string, delta Amount) error
	EntriesByRequest(ctx context.Context, requestID string) ([]Entry, error)
}
