package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/requestdirectory/gateway/internal/ledger"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, rec *RequestRecord) error {
	rec.Status = StatusPending
	query := `
		INSERT INTO request_records (id, account_id, provider, status, estimated_cost, request_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := s.db.QueryRow(ctx, query,
		rec.ID, rec.AccountID, rec.Provider, string(rec.Status),
		int64(rec.EstimatedCost), rec.RequestPayload,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create request record: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkSuccess(ctx context.Context, id string, actualCost ledger.Amount, responsePayload []byte) error {
	query := `
		UPDATE request_records
		SET status = $1, actual_cost = $2, response_payload = $3, completed_at = now()
		WHERE id = $4 AND status = $5
	`
	tag, err := s.db.Exec(ctx, query,
		string(StatusSuccess), int64(actualCost), responsePayload, id, string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize request record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.finalizeMiss(ctx, id)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string) error {
	query := `
		UPDATE request_records
		SET status = $1, actual_cost = 0, completed_at = now()
		WHERE id = $2 AND status = $3
	`
	tag, err := s.db.Exec(ctx, query, string(StatusFailed), id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("failed to finalize request record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.finalizeMiss(ctx, id)
	}
	return nil
}

// finalizeMiss distinguishes "no such record" from "already left pending"
// after a conditional update touched zero rows.
func (s *PostgresStore) finalizeMiss(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM request_records WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("request record lookup failed: %w", err)
	}
	if !exists {
		return ErrRecordNotFound
	}
	return ErrAlreadyFinal
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*RequestRecord, error) {
	query := `
		SELECT id, account_id, provider, status, estimated_cost, actual_cost,
		       request_payload, response_payload, created_at, completed_at
		FROM request_records
		WHERE id = $1
	`
	rec, err := scanRecord(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get request record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*RequestRecord, error) {
	query := `
		SELECT id, account_id, provider, status, estimated_cost, actual_cost,
		       request_payload, response_payload, created_at, completed_at
		FROM request_records
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, string(StatusPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	var recs []*RequestRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating request records: %w", err)
	}
	return recs, nil
}

func scanRecord(row pgx.Row) (*RequestRecord, error) {
	var rec RequestRecord
	var status string
	var estimated int64
	var actual *int64
	if err := row.Scan(
		&rec.ID, &rec.AccountID, &rec.Provider, &status, &estimated, &actual,
		&rec.RequestPayload, &rec.ResponsePayload, &rec.CreatedAt, &rec.CompletedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.EstimatedCost = ledger.Amount(estimated)
	if actual != nil {
		cost := ledger.Amount(*actual)
		rec.ActualCost = &cost
	}
	return &rec, nil
}
