package lockdown

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/model"
	"golang.org/x/time/rate"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	// MaxBatch matches the server's per-heartbeat event limit.
	MaxBatch = 200
)

// SessionAPI is the subset of the exam API the heartbeater talks to.
type SessionAPI interface {
	Heartbeat(ctx context.Context, events []model.ClientEvent) (*model.HeartbeatResult, error)
	Submit(ctx context.Context, responses []model.AnswerInput) (*model.SubmitResult, error)
}

// HeartbeaterConfig tunes a Heartbeater.
type HeartbeaterConfig struct {
	Interval time.Duration
	// EarlyFlushEvery bounds how often a full queue may trigger an extra heartbeat.
	EarlyFlushEvery time.Duration
	// Answers returns the locally held answers sent with the final submit.
	// Nil submits nothing, and the server grades what was autosaved.
	Answers func() []model.AnswerInput
	// OnTick is called after every successful heartbeat.
	OnTick func(*model.HeartbeatResult)
}

// Heartbeater delivers queued events on a fixed cadence and ends the exam
// when the server says the session may no longer continue.
type Heartbeater struct {
	coord *Coordinator
	api   SessionAPI
	cfg   HeartbeaterConfig
	early *rate.Limiter
	log   zerolog.Logger
}

// NewHeartbeater creates a Heartbeater for an entered Coordinator.
func NewHeartbeater(coord *Coordinator, api SessionAPI, cfg HeartbeaterConfig, log zerolog.Logger) *Heartbeater {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHeartbeatInterval
	}
	if cfg.EarlyFlushEvery <= 0 {
		cfg.EarlyFlushEvery = 5 * time.Second
	}
	return &Heartbeater{
		coord: coord,
		api:   api,
		cfg:   cfg,
		early: rate.NewLimiter(rate.Every(cfg.EarlyFlushEvery), 1),
		log:   log.With().Str("component", "heartbeater").Logger(),
	}
}

// Run beats until the server stops the session or ctx ends. When the server
// stops it, Run submits, exits lockdown and returns the grade.
func (h *Heartbeater) Run(ctx context.Context) (*model.SubmitResult, error) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		case <-h.coord.Wake():
			if !h.early.Allow() {
				continue
			}
		}

		res, err := h.Beat(ctx)
		if err != nil {
			h.log.Warn().Err(err).Int("pending", h.coord.Queue().Len()).Msg("Heartbeat failed")
			continue
		}
		if res.Continue {
			continue
		}

		h.log.Info().Msg("Server ended the session")
		return h.Finish(ctx)
	}
}

// Beat sends one batch. Undelivered events are put back in the queue.
func (h *Heartbeater) Beat(ctx context.Context) (*model.HeartbeatResult, error) {
	batch := h.coord.Queue().Drain(MaxBatch)
	res, err := h.api.Heartbeat(ctx, batch)
	if err != nil {
		h.coord.Queue().Requeue(batch)
		return nil, err
	}
	if h.cfg.OnTick != nil {
		h.cfg.OnTick(res)
	}
	return res, nil
}

// Finish flushes what is still pending, submits and leaves lockdown. The
// flush is best effort because the server rejects events on a closed session.
func (h *Heartbeater) Finish(ctx context.Context) (*model.SubmitResult, error) {
	if h.coord.Queue().Len() > 0 {
		if _, err := h.Beat(ctx); err != nil {
			h.log.Debug().Err(err).Msg("Final event flush failed")
		}
	}

	var answers []model.AnswerInput
	if h.cfg.Answers != nil {
		answers = h.cfg.Answers()
	}
	result, err := h.api.Submit(ctx, answers)

	if exitErr := h.coord.Exit(); exitErr != nil && exitErr != ErrNotActive {
		h.log.Warn().Err(exitErr).Msg("Failed to exit lockdown")
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
