package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// StaleSweeper runs outside the request hot path and cleans up rows that
// sat with an empty result past the staleness window: requests whose
// client disconnected or whose process died before reaching persistence.
// Each abandoned row gets its charge reversed (at most once, the ledger
// enforces it) and is removed so it never surfaces in history.
type StaleSweeper struct {
	store    SummaryStore
	ledger   Ledger
	window   time.Duration
	interval time.Duration
	log      zerolog.Logger
}

func NewStaleSweeper(store SummaryStore, ledger Ledger, window, interval time.Duration, log zerolog.Logger) *StaleSweeper {
	return &StaleSweeper{
		store:    store,
		ledger:   ledger,
		window:   window,
		interval: interval,
		log:      log,
	}
}

func (sw *StaleSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.SweepOnce(ctx)
			}
		}
	}()
}

func (sw *StaleSweeper) SweepOnce(ctx context.Context) {
	rows, err := sw.store.StaleSummaries(ctx, time.Now().Add(-sw.window))
	if err != nil {
		sw.log.Error().Err(err).Msg("Stale sweep query failed")
		return
	}

	for _, row := range rows {
		_, err := sw.ledger.RefundOnce(ctx, row.UserID, row.RequestID, "abandoned request")
		if err != nil && !errors.Is(err, ErrAlreadyRefunded) && !errors.Is(err, ErrNothingToRefund) {
			// Keep the row so the next sweep retries the refund.
			sw.log.Error().Err(err).Uint("summaryID", row.ID).Msg("Stale refund failed")
			continue
		}
		if err := sw.store.DeleteSummary(ctx, row.ID); err != nil {
			sw.log.Error().Err(err).Uint("summaryID", row.ID).Msg("Failed to delete stale row")
			continue
		}
		sw.log.Info().Uint("summaryID", row.ID).Str("userID", row.UserID.String()).Msg("Swept abandoned request")
	}
}
