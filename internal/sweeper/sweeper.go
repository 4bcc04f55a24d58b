// Reconciliation sweep for requests orphaned mid-pipeline.
//
// A crash between reserving funds and settling leaves a RequestRecord in
// pending with the caller's money already debited. The sweep finds records
// stuck pending past a timeout, refunds the reservation and fails the
// record. Refund and finalize are both idempotent, so the sweep racing a
// still-live request (or another gateway process) cannot double-credit.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/requestdirectory/gateway/internal/audit"
	"github.com/requestdirectory/gateway/internal/ledger"
	"github.com/requestdirectory/gateway/internal/metrics"
)

type Sweeper struct {
	ledger         ledger.Store
	audit          audit.Store
	pendingTimeout time.Duration
	schedule       string
	cron           *cron.Cron
}

func New(ledgerStore ledger.Store, auditStore audit.Store, pendingTimeout time.Duration, schedule string) *Sweeper {
	return &Sweeper{
		ledger:         ledgerStore,
		audit:          auditStore,
		pendingTimeout: pendingTimeout,
		schedule:       schedule,
	}
}

// Start schedules the sweep and returns. Stop waits for an in-flight sweep.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			log.Error().Err(err).Msg("sweep failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep refunds and fails every record stuck pending since before the
// timeout. One bad record does not stop the rest.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.pendingTimeout)
	recs, err := s.audit.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if err := s.ledger.Refund(ctx, rec.AccountID, rec.ID, rec.EstimatedCost); err != nil {
			log.Error().Err(err).
				Str("request_id", rec.ID).
				Str("account_id", rec.AccountID).
				Msg("sweep: refund failed, funds remain stuck")
			metrics.RefundFailures.Inc()
			continue
		}
		if err := s.audit.MarkFailed(ctx, rec.ID); err != nil {
			log.Error().Err(err).Str("request_id", rec.ID).Msg("sweep: failed to finalize record")
			continue
		}
		metrics.SweepRefunds.Inc()
		log.Info().
			Str("request_id", rec.ID).
			Str("account_id", rec.AccountID).
			Str("amount", rec.EstimatedCost.String()).
			Msg("sweep: refunded stale pending request")
	}
	return nil
}
