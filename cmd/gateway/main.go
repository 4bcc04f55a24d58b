package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/requestdirectory/gateway/config"
	"github.com/requestdirectory/gateway/internal/audit"
	"github.com/requestdirectory/gateway/internal/auth"
	"github.com/requestdirectory/gateway/internal/gateway"
	"github.com/requestdirectory/gateway/internal/ledger"
	"github.com/requestdirectory/gateway/internal/registry"
	"github.com/requestdirectory/gateway/internal/seeder"
	"github.com/requestdirectory/gateway/internal/sweeper"
	"github.com/requestdirectory/gateway/internal/telemetry"
	"github.com/requestdirectory/gateway/internal/upstream"
	"github.com/requestdirectory/gateway/pkg/ratelimit"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.With().Str("service", "request-directory").Logger()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("request-directory", cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping postgres")
	}
	log.Info().Msg("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping redis")
	}
	log.Info().Msg("Redis connected")

	// 5. Load provider definitions, once; immutable afterwards
	defs, err := registry.Load(cfg.ProvidersDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load provider definitions")
	}
	reg, err := registry.New(defs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider registry")
	}
	for _, d := range reg.Providers() {
		log.Info().Str("slug", d.Slug).Bool("enabled", d.Enabled).Str("price", d.PricePerCall().String()).Msg("provider loaded")
	}

	// 6. Init auth
	authStore := auth.NewPostgresStore(pool)
	authenticator := auth.NewAuthenticator(authStore)
	authMiddleware := auth.NewMiddleware(authenticator, rdb)

	// 7. Init ledger and audit stores
	ledgerStore := ledger.NewPostgresStore(pool)
	auditStore := audit.NewPostgresStore(pool)

	var enc *audit.Encryptor
	if cfg.AuditEncryptionKey != "" {
		enc, err = audit.NewEncryptor(cfg.AuditEncryptionKey)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid audit encryption key")
		}
	}

	// 8. Init rate limiter and upstream client
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitRPM)
	client := upstream.NewClient(reg.Providers(), cfg.UpstreamTimeout)

	// 9. Init handler
	tracer := otel.GetTracerProvider().Tracer("request-directory")
	handler := gateway.NewHandler(reg, ledgerStore, auditStore, client, limiter, enc, tracer)

	// 10. Start the reconciliation sweep
	sw := sweeper.New(ledgerStore, auditStore, cfg.PendingTimeout, cfg.SweepSchedule)
	if err := sw.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start reconciliation sweep")
	}
	defer sw.Stop()

	// 11. Seed test account if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAccount(ctx, pool, authStore)
	}

	// 12. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"request-directory"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/{slug}", handler.HandleStatus)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.HandleFunc("/v1/{slug}/*", handler.HandleProxy)
	})

	// 13. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("gateway starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("Server stopped")
}
