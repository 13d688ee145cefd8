package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/middleware"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
	"github.com/stemsi/labexam-backend/internal/validator"
	ws "github.com/stemsi/labexam-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the session stream: the REST client actions over one
// long-lived connection.
type WSHandler struct {
	sessionService *service.SessionService
	limiter        *middleware.RateLimiter
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter paces heartbeats per session
// and may be nil.
func NewWSHandler(sessionService *service.SessionService, limiter *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		limiter:        limiter,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream?token=<session token>
// Accepts autosave, heartbeat, submit and ping actions. The connection is
// closed after a graded reply or once the session is no longer usable.
func (h *WSHandler) SessionStream(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	if sessionID == uuid.Nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalid)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().Str("session_id", sessionID.String()).Logger()
	wsLog.Info().Msg("Participant connected")

	ctx := c.Request.Context()
	for {
		raw, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := ws.Decode(raw, &env); err != nil {
			_ = ws.WriteError(conn, "", string(response.ErrInvalidPayload), "malformed message")
			continue
		}

		if done := h.dispatch(ctx, conn, wsLog, sessionID, env, raw); done {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// dispatch handles one message and reports whether the connection should end.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, sessionID uuid.UUID, env ws.RequestEnvelope, raw []byte) bool {
	switch env.Action {
	case ws.ActionPing:
		_ = ws.WriteEvent(conn, ws.EventPong, env.ReqID, gin.H{"server_time": h.sessionService.Now()})
		return false

	case ws.ActionAutosave:
		var req ws.AutosaveRequest
		if err := ws.Decode(raw, &req); err != nil || req.QuestionID == uuid.Nil {
			_ = ws.WriteError(conn, env.ReqID, string(response.ErrInvalidPayload), "question_id is required")
			return false
		}
		saved, err := h.sessionService.SaveResponse(ctx, sessionID, model.AnswerInput{
			QuestionID: req.QuestionID, SelectedIdx: req.SelectedIdx,
		})
		if err != nil {
			return h.writeServiceError(conn, wsLog, env.ReqID, err)
		}
		_ = ws.WriteEvent(conn, ws.EventSaved, env.ReqID, saved)
		return false

	case ws.ActionHeartbeat:
		if h.limiter != nil && !h.limiter.Allow("session:"+sessionID.String()) {
			_ = ws.WriteError(conn, env.ReqID, string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
			return false
		}
		var req ws.HeartbeatRequest
		if err := ws.Decode(raw, &req); err != nil {
			_ = ws.WriteError(conn, env.ReqID, string(response.ErrInvalidPayload), "invalid events batch")
			return false
		}
		if fields := validator.Struct(&model.HeartbeatRequest{Events: req.Events}); fields != nil {
			writeValidationError(conn, env.ReqID, fields)
			return false
		}
		res, err := h.sessionService.Heartbeat(ctx, sessionID, req.Events)
		if err != nil {
			return h.writeServiceError(conn, wsLog, env.ReqID, err)
		}
		_ = ws.WriteEvent(conn, ws.EventHeartbeat, env.ReqID, res)
		return false

	case ws.ActionSubmit:
		var req ws.SubmitRequest
		if err := ws.Decode(raw, &req); err != nil {
			_ = ws.WriteError(conn, env.ReqID, string(response.ErrInvalidPayload), "invalid responses")
			return false
		}
		if fields := validator.Struct(&model.SubmitRequest{Responses: req.Responses}); fields != nil {
			writeValidationError(conn, env.ReqID, fields)
			return false
		}
		res, err := h.sessionService.Submit(ctx, sessionID, req.Responses)
		if err != nil {
			return h.writeServiceError(conn, wsLog, env.ReqID, err)
		}
		_ = ws.WriteEvent(conn, ws.EventGraded, env.ReqID, res)
		return true

	default:
		wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		_ = ws.WriteError(conn, env.ReqID, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		return false
	}
}

// writeServiceError reports a service failure and reports whether the session
// is finished for this connection.
func (h *WSHandler) writeServiceError(conn *websocket.Conn, wsLog zerolog.Logger, reqID string, err error) bool {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		wsLog.Error().Err(err).Msg("Session action failed")
	}
	_ = ws.WriteError(conn, reqID, string(code), response.GetMessage(code))
	return code == response.ErrSessionInvalid || code == response.ErrAlreadySubmitted
}

// writeValidationError sends the translated field errors as one message,
// ordered by field name.
func writeValidationError(conn *websocket.Conn, reqID string, fields map[string]string) {
	msgs := make([]string, 0, len(fields))
	for field, msg := range fields {
		msgs = append(msgs, field+": "+msg)
	}
	sort.Strings(msgs)
	_ = ws.WriteError(conn, reqID, string(response.ErrValidation), strings.Join(msgs, "; "))
}
