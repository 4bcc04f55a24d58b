package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Balance(ctx context.Context, accountID string) (Amount, error) {
	var balance int64
	err := s.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return Amount(balance), nil
}

func (s *PostgresStore) Reserve(ctx context.Context, accountID, requestID string, amount Amount) error {
	if amount < 0 {
		return fmt.Errorf("reserve amount must not be negative: %s", amount)
	}
	return s.apply(ctx, accountID, requestID, ReasonReserve, -amount)
}

func (s *PostgresStore) Refund(ctx context.Context, accountID, requestID string, amount Amount) error {
	if amount < 0 {
		return fmt.Errorf("refund amount must not be negative: %s", amount)
	}
	return s.apply(ctx, accountID, requestID, ReasonRefund, amount)
}

func (s *PostgresStore) SettleAdjustment(ctx context.Context, accountID, requestID string, delta Amount) error {
	return s.apply(ctx, accountID, requestID, ReasonSettle, delta)
}

// apply records one entry and moves the balance by delta inside a single
// transaction. The entry insert is the idempotency guard: a conflicting
// (request_id, reason) pair means the delta was already applied, so the
// whole operation becomes a no-op. The balance update is conditional on the
// resulting balance staying non-negative, which is the only serialization
// point the pipeline relies on.
func (s *PostgresStore) apply(ctx context.Context, accountID, requestID string, reason Reason, delta Amount) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (account_id, request_id, reason, delta)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (request_id, reason) DO NOTHING
	`, accountID, requestID, string(reason), int64(delta))
	if err != nil {
		return fmt.Errorf("ledger entry insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Replay of an already-applied operation.
		return tx.Commit(ctx)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE accounts SET balance = balance + $1
		WHERE id = $2 AND balance + $1 >= 0
	`, int64(delta), accountID)
	if err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
			return fmt.Errorf("account lookup failed: %w", err)
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) EntriesByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, request_id, reason, delta, created_at
		FROM ledger_entries
		WHERE request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason string
		var delta int64
		if err := rows.Scan(&e.ID, &e.AccountID, &e.RequestID, &reason, &delta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Reason = Reason(reason)
		e.Delta = Amount(delta)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}
