package seeder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/requestdirectory/gateway/internal/auth"
	"github.com/requestdirectory/gateway/internal/ledger"
)

const (
	TestAPIKey    = "rd_test_api_key_12345"
	TestAccountID = "00000000-0000-0000-0000-000000000001"
)

// TestBalance is the starting balance of the seeded account, $10.00.
var TestBalance = ledger.FromUSD(10)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SeedTestAccount creates a dev account with a prepaid balance and an API
// key for it. Safe to run repeatedly.
func SeedTestAccount(ctx context.Context, db DB, store auth.Store) {
	_, err := db.Exec(ctx, `
		INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, TestAccountID, int64(TestBalance))
	if err != nil {
		log.Warn().Err(err).Msg("[Seeder] failed to create test account")
		return
	}

	h := sha256.New()
	h.Write([]byte(TestAPIKey))
	keyHash := hex.EncodeToString(h.Sum(nil))

	apiKey := &auth.APIKey{
		AccountID: TestAccountID,
		KeyHash:   keyHash,
		Active:    true,
	}
	if err := store.Create(ctx, apiKey); err != nil {
		log.Warn().Err(err).Msg("[Seeder] API key may already exist, skipping")
		return
	}

	log.Info().Msg("[Seeder] Test account created successfully")
	log.Info().Str("key", TestAPIKey).Msg("[Seeder] API key")
	log.Info().Str("account_id", TestAccountID).Str("balance", TestBalance.String()).Msg("[Seeder] Account")
}
