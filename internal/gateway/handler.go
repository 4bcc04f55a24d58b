// Request orchestration for the metered proxy pipeline.
//
// One inbound call walks authenticate -> resolve -> validate -> reserve ->
// proxy -> settle. Funds move only between reserve and settle, and every
// path out of that window either settles the charge or refunds it in full.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/requestdirectory/gateway/internal/audit"
	"github.com/requestdirectory/gateway/internal/auth"
	"github.com/requestdirectory/gateway/internal/ledger"
	"github.com/requestdirectory/gateway/internal/metrics"
	"github.com/requestdirectory/gateway/internal/registry"
	"github.com/requestdirectory/gateway/internal/upstream"
	"github.com/requestdirectory/gateway/internal/validate"
	"github.com/requestdirectory/gateway/pkg/ratelimit"
)

// saveHeader opts a caller in to encrypted payload capture on the
// RequestRecord.
const saveHeader = "X-Save-Request"

// Forwarder performs the upstream call. Satisfied by *upstream.Client.
type Forwarder interface {
	Forward(r *http.Request, def *registry.Definition, subPath string, body io.Reader, contentType string) (*upstream.Response, error)
}

type Handler struct {
	registry *registry.Registry
	ledger   ledger.Store
	audit    audit.Store
	upstream Forwarder
	limiter  *ratelimit.Limiter
	enc      *audit.Encryptor
	tracer   trace.Tracer
}

func NewHandler(
	reg *registry.Registry,
	ledgerStore ledger.Store,
	auditStore audit.Store,
	forwarder Forwarder,
	limiter *ratelimit.Limiter,
	enc *audit.Encryptor,
	tracer trace.Tracer,
) *Handler {
	return &Handler{
		registry: reg,
		ledger:   ledgerStore,
		audit:    auditStore,
		upstream: forwarder,
		limiter:  limiter,
		enc:      enc,
		tracer:   tracer,
	}
}

// HandleProxy serves {METHOD} /v1/{slug}/*.
func (h *Handler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accountID := auth.GetAccountID(ctx)
	if accountID == "" {
		writeError(w, errUnauthorized)
		return
	}
	requestID := auth.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	slug := chi.URLParam(r, "slug")
	subPath := chi.URLParam(r, "*")

	ctx, span := h.tracer.Start(ctx, "gateway.proxy")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", accountID),
		attribute.String("request_id", requestID),
		attribute.String("provider", slug),
	)
	r = r.WithContext(ctx)

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, accountID)
		if err != nil || !allowed {
			w.Header().Set("Retry-After", "60")
			writeError(w, errRateLimited)
			return
		}
	}

	// Resolving
	def, err := h.registry.Resolve(slug)
	if err != nil {
		writeError(w, errProviderNotFound)
		return
	}
	if !def.Enabled {
		writeError(w, errProviderDisabled)
		return
	}
	ep, err := h.registry.ResolveEndpoint(def, r.Method, subPath)
	if err != nil {
		writeError(w, errInvalidPath)
		return
	}

	// Validating, strictly before any funds move
	body, rawJSON, err := validate.ParseBody(r, ep.Input.Type)
	if err != nil {
		writeError(w, errInvalidBody)
		return
	}
	if err := validate.Validate(ep, body); err != nil {
		var missing *validate.MissingParameterError
		if errors.As(err, &missing) {
			writeError(w, missingParameter(missing.Name))
			return
		}
		writeError(w, errInvalidBody)
		return
	}

	// Reserving
	price := def.PricePerCall()
	if err := h.ledger.Reserve(ctx, accountID, requestID, price); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			writeError(w, errInsufficientFunds)
			return
		}
		log.Error().Err(err).Str("request_id", requestID).Msg("reservation failed")
		writeError(w, errInternal)
		return
	}

	capture := h.enc != nil && r.Header.Get(saveHeader) == "true"
	rec := &audit.RequestRecord{
		ID:             requestID,
		AccountID:      accountID,
		Provider:       def.Slug,
		EstimatedCost:  price,
		RequestPayload: h.seal(capture, rawJSON),
	}
	if err := h.audit.Create(ctx, rec); err != nil {
		// Funds are already debited; give them back before reporting.
		log.Error().Err(err).Str("request_id", requestID).Msg("failed to create request record")
		h.fail(ctx, def, accountID, requestID, price)
		writeError(w, errUpstream)
		return
	}

	// Proxying
	outBody, contentType := forwardBody(ep.Input.Type, rawJSON, body)
	start := time.Now()
	resp, err := h.upstream.Forward(r, def, subPath, outBody, contentType)
	metrics.UpstreamLatency.WithLabelValues(def.Slug).Observe(time.Since(start).Seconds())

	if err != nil || !resp.OK() {
		if err != nil {
			log.Warn().Err(err).Str("request_id", requestID).Str("provider", def.Slug).Msg("upstream call failed")
		} else {
			log.Warn().Int("status", resp.StatusCode).Str("request_id", requestID).Str("provider", def.Slug).Msg("upstream returned non-2xx")
		}
		h.fail(ctx, def, accountID, requestID, price)
		metrics.RequestsTotal.WithLabelValues(def.Slug, string(audit.StatusFailed)).Inc()
		writeError(w, errUpstream)
		return
	}

	// Settling. Pricing is fixed, so actual cost equals the reservation and
	// the adjustment delta is zero; the hook stays for variable pricing.
	// Ledger and audit writes survive a caller disconnect.
	done := context.WithoutCancel(ctx)
	if err := h.ledger.SettleAdjustment(done, accountID, requestID, 0); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("settle adjustment failed")
	}
	if err := h.audit.MarkSuccess(done, requestID, price, h.seal(capture, resp.Payload())); err != nil && !errors.Is(err, audit.ErrAlreadyFinal) {
		log.Error().Err(err).Str("request_id", requestID).Msg("failed to finalize request record")
	}
	metrics.RequestsTotal.WithLabelValues(def.Slug, string(audit.StatusSuccess)).Inc()
	metrics.ChargesUSD.WithLabelValues(def.Slug).Add(price.USD())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Payload())
}

// fail returns the full reservation and finalizes the record as failed.
// Runs on a context detached from the caller's connection: money movement
// must complete whether or not anyone is still listening.
func (h *Handler) fail(ctx context.Context, def *registry.Definition, accountID, requestID string, price ledger.Amount) {
	done := context.WithoutCancel(ctx)

	if err := h.ledger.Refund(done, accountID, requestID, price); err != nil {
		// Debited funds with no refund. Page on this, never swallow it.
		log.Error().Err(err).
			Str("account_id", accountID).
			Str("request_id", requestID).
			Str("amount", price.String()).
			Msg("refund failed, funds are stuck pending reconciliation")
		metrics.RefundFailures.Inc()
	} else {
		metrics.RefundsUSD.WithLabelValues(def.Slug).Add(price.USD())
	}

	if err := h.audit.MarkFailed(done, requestID); err != nil && !errors.Is(err, audit.ErrAlreadyFinal) {
		log.Error().Err(err).Str("request_id", requestID).Msg("failed to finalize request record")
	}
}

func (h *Handler) seal(capture bool, payload []byte) []byte {
	if !capture || len(payload) == 0 {
		return nil
	}
	sealed, err := h.enc.Seal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to encrypt payload copy")
		return nil
	}
	return sealed
}

func forwardBody(typ registry.InputType, rawJSON []byte, body validate.Body) (io.Reader, string) {
	if typ == registry.InputForm {
		if fb, ok := body.(validate.FormBody); ok {
			return fb.Encode()
		}
	}
	return bytes.NewReader(rawJSON), "application/json"
}

// HandleStatus serves GET /v1/{slug}: an uncharged health probe that reads
// only the provider registry.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	def, err := h.registry.Resolve(slug)
	if err != nil {
		writeError(w, errProviderNotFound)
		return
	}

	status := "ok"
	if !def.Enabled {
		status = "bad"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": status,
		"name":   def.Name,
		"docs":   docsURL + "/" + def.Slug,
	})
}
