package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/cache"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler serves the proctor's live view of an exam.
type MonitorHandler struct {
	monitorService  *service.MonitorService
	bus             cache.MonitorBus
	refreshInterval time.Duration
	log             zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. refresh is how often the
// stream resends a full snapshot so remaining times stay current.
func NewMonitorHandler(
	monitorService *service.MonitorService,
	bus cache.MonitorBus,
	refresh time.Duration,
	log zerolog.Logger,
) *MonitorHandler {
	if refresh <= 0 {
		refresh = 10 * time.Second
	}
	return &MonitorHandler{
		monitorService:  monitorService,
		bus:             bus,
		refreshInterval: refresh,
		log:             log.With().Str("component", "monitor_handler").Logger(),
	}
}

// Snapshot godoc
// GET /api/v1/exams/:id/monitor
// Returns every session of the exam with status, remaining time, flags and score.
func (h *MonitorHandler) Snapshot(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	snap, err := h.monitorService.Snapshot(c.Request.Context(), actor, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// SessionEvents godoc
// GET /api/v1/exams/:id/sessions/:sid/events
// Returns the integrity event log of one session, oldest first.
func (h *MonitorHandler) SessionEvents(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	sessionID, ok := pathUUID(c, "sid")
	if !ok {
		return
	}

	events, err := h.monitorService.SessionEvents(c.Request.Context(), actor, examID, sessionID)
	if errors.Is(err, service.ErrSessionNotFound) {
		// Here the session is a resource, not the caller's credential.
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if events == nil {
		events = []model.EventLog{}
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// Stream godoc
// GET /api/v1/exams/:id/monitor/stream
// SSE: an initial snapshot, then every monitor bus event as it happens, plus a
// periodic snapshot refresh and keepalive pings.
func (h *MonitorHandler) Stream(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	// Ownership is checked before any SSE header goes out.
	snap, err := h.monitorService.Snapshot(reqCtx, actor, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	sub, err := h.bus.Subscribe(reqCtx, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	writeSSE(c, "snapshot", snap)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(h.refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Proctor attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Proctor disconnected from live monitor SSE")
			return

		case msg, open := <-sub.Messages():
			if !open {
				return
			}
			// Forward raw JSON directly, no deserialization needed
			writeSSERaw(c, "event", msg)

		case <-refreshTicker.C:
			h.sendRefresh(c, reqCtx, actor, examID)

		case <-keepAliveTicker.C:
			writeSSERaw(c, "ping", []byte(`{"type":"ping"}`))
		}
	}
}

// sendRefresh resends the full snapshot so server-derived remaining times and
// expired statuses advance without a bus event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, actor service.Actor, examID uuid.UUID) {
	// Scoped timeout prevents a slow query from stalling the SSE loop
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, actor, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh monitor snapshot")
		return
	}
	writeSSE(c, "snapshot", snap)
}

func writeSSE(c *gin.Context, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	writeSSERaw(c, event, data)
}

func writeSSERaw(c *gin.Context, event string, data []byte) {
	_, _ = c.Writer.Write([]byte("event: " + event + "\ndata: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
