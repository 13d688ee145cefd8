package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event kinds written by the server itself.
const (
	EventExamStarted   = "exam_started"
	EventExamSubmitted = "exam_submitted"
	EventExamExpired   = "exam_expired"
)

// EventLog is one integrity or lifecycle event recorded against a session.
// RecordedAt is assigned by the server at ingestion; ClientTimestamp is audit-only.
type EventLog struct {
	ID              int64           `json:"id"`
	SessionID       uuid.UUID       `json:"session_id"`
	EventType       string          `json:"event_type"`
	Details         json.RawMessage `json:"details,omitempty"`
	ClientTimestamp *time.Time      `json:"client_timestamp,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// ClientEvent is an event as reported by the lockdown client.
type ClientEvent struct {
	Type      string          `json:"type" binding:"required,min=1,max=64"`
	Details   json.RawMessage `json:"details,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// FlaggedEvent is an event joined with its session's participant, for the admin feed.
type FlaggedEvent struct {
	EventLog
	ParticipantID string    `json:"participant_id"`
	ExamID        uuid.UUID `json:"exam_id"`
}
