package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpiryBatchSize caps how many sessions one sweep finalizes.
const ExpiryBatchSize = 200

// Expirer finalizes sessions whose deadline passed more than grace ago.
type Expirer interface {
	ExpireOverdue(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// ExpiryWorker submits abandoned sessions on the participant's behalf, so a
// client that never comes back still ends up graded.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

// NewExpiryWorker creates an ExpiryWorker sweeping every interval.
func NewExpiryWorker(expirer Expirer, interval, grace time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start sweeps until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry pass, repeating while full batches come back.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	total := 0
	for {
		n, err := w.expirer.ExpireOverdue(ctx, w.grace, ExpiryBatchSize)
		total += n
		if err != nil {
			if ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
			break
		}
		if n < ExpiryBatchSize {
			break
		}
	}
	if total > 0 {
		w.log.Info().Int("expired", total).Msg("Overdue sessions finalized")
	}
	return total
}
