package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionHeartbeat Action = "heartbeat"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
// ReqID is echoed back so the client can match replies.
type RequestEnvelope struct {
	Action Action `json:"action"`
	ReqID  string `json:"req_id,omitempty"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	QuestionID  uuid.UUID `json:"question_id"`
	SelectedIdx *int      `json:"selected_idx"`
}

// HeartbeatRequest carries the client's queued integrity events.
type HeartbeatRequest struct {
	Events []model.ClientEvent `json:"events"`
}

// SubmitRequest is sent by the client to finish and grade the exam.
type SubmitRequest struct {
	Responses []model.AnswerInput `json:"responses"`
}

// Decode parses the action-specific body of a raw message.
func Decode(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventHeartbeat Event = "heartbeat"
	EventGraded    Event = "graded"
	EventPong      Event = "pong"
)

// Reply is every server message: an event, the echoed req_id and either a
// payload or an error.
type Reply struct {
	Event Event  `json:"event"`
	ReqID string `json:"req_id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}
