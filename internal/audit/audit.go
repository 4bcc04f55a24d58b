package audit

import (
	"context"
	"errors"
	"time"

	"github.com/requestdirectory/gateway/internal/ledger"
)

var (
	ErrRecordNotFound = errors.New("request record not found")
	// ErrAlreadyFinal means a record was asked to leave pending twice.
	ErrAlreadyFinal = errors.New("request record already finalized")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// RequestRecord is the audit and billing record of one gateway-mediated
// call. It is created in pending state at the moment funds are reserved,
// transitions exactly once to success or failed, and is never deleted.
// Payload copies are stored encrypted when capture is enabled.
type RequestRecord struct {
	ID              string
	AccountID       string
	Provider        string
	Status          Status
	EstimatedCost   ledger.Amount
	ActualCost      *ledger.Amount // nil until settled
	RequestPayload  []byte
	ResponsePayload []byte
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

type Store interface {
	Create(ctx context.Context, rec *RequestRecord) error
	// MarkSuccess finalizes a pending record with its settled cost.
	// Returns ErrAlreadyFinal if the record already left pending.
	MarkSuccess(ctx context.Context, id string, actualCost ledger.Amount, responsePayload []byte) error
	// MarkFailed finalizes a pending record with an actual cost of zero.
	MarkFailed(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*RequestRecord, error)
	// ListPendingBefore returns records stuck in pending since before
	// cutoff, for the reconciliation sweep.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*RequestRecord, error)
}
