package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of an exam attempt.
type SessionState string

const (
	SessionStateActive    SessionState = "ACTIVE"
	SessionStateExpired   SessionState = "EXPIRED"
	SessionStateSubmitted SessionState = "SUBMITTED"
)

// SubmitReason records which path made a session terminal.
type SubmitReason string

const (
	SubmitReasonSubmitted SubmitReason = "submitted"
	SubmitReasonExpired   SubmitReason = "expired"
)

// Session is one participant's single attempt at one exam.
// StartedAt is set once by the server; SubmittedAt, Score and Total are set
// together in the terminal transition and never change afterwards.
type Session struct {
	ID            uuid.UUID     `json:"id"`
	ExamID        uuid.UUID     `json:"exam_id"`
	ParticipantID string        `json:"participant_id"`
	DeviceID      *uuid.UUID    `json:"device_id,omitempty"`
	UserID        *uuid.UUID    `json:"user_id,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
	SubmitReason  *SubmitReason `json:"submit_reason,omitempty"`
	Flags         []string      `json:"flags"`
	Score         *int          `json:"score,omitempty"`
	Total         *int          `json:"total,omitempty"`
}

// IsTerminal reports whether the session has been submitted (by the participant or by expiry).
func (s *Session) IsTerminal() bool {
	return s.SubmittedAt != nil
}

// State derives the lifecycle state. pastDeadline is the server clock's
// verdict; an overdue session the sweeper has not finalized yet is already
// EXPIRED.
func (s *Session) State(pastDeadline bool) SessionState {
	switch {
	case s.IsTerminal() && s.SubmitReason != nil && *s.SubmitReason == SubmitReasonExpired:
		return SessionStateExpired
	case s.IsTerminal():
		return SessionStateSubmitted
	case pastDeadline:
		return SessionStateExpired
	default:
		return SessionStateActive
	}
}

// Grade is the stored grading outcome of a terminal session.
type Grade struct {
	Score      int     `json:"score"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Grader computes a grade from the exam's answer key and the session's final responses.
type Grader func(questions []Question, responses []Response) Grade

// StartSessionRequest is the payload for starting or resuming an exam attempt.
type StartSessionRequest struct {
	RollNumber string `json:"roll_number" binding:"required,min=1,max=64"`
	ExamID     string `json:"exam_id" binding:"omitempty,uuid"`
	ExamCode   string `json:"exam_code" binding:"omitempty,exam_code"`
}

// StartSessionResult is returned from start/resume.
type StartSessionResult struct {
	SessionID       uuid.UUID `json:"session_id"`
	SessionToken    string    `json:"session_token"`
	ExamID          uuid.UUID `json:"exam_id"`
	ExamCode        string    `json:"exam_code"`
	DurationMinutes int       `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
	Deadline        time.Time `json:"deadline"`
	RemainingMs     int64     `json:"remaining_ms"`
	Resuming        bool      `json:"resuming"`
}

// ExamContent is the participant's view of the exam for an active session.
type ExamContent struct {
	ExamTitle       string               `json:"exam_title"`
	ExamCode        string               `json:"exam_code"`
	DurationMinutes int                  `json:"duration_minutes"`
	StartedAt       time.Time            `json:"started_at"`
	Deadline        time.Time            `json:"deadline"`
	RemainingMs     int64                `json:"remaining_ms"`
	Questions       []QuestionForStudent `json:"questions"`
}

// SubmitRequest is the payload for the final submission.
type SubmitRequest struct {
	Responses []AnswerInput `json:"responses" binding:"omitempty,max=500,dive"`
}

// SubmitResult is returned from submit. Replayed is set when the session was
// already terminal and the stored grade is returned unchanged.
type SubmitResult struct {
	Score        int          `json:"score"`
	Total        int          `json:"total"`
	Percentage   float64      `json:"percentage"`
	SubmittedAt  time.Time    `json:"submitted_at"`
	SubmitReason SubmitReason `json:"submit_reason"`
	Replayed     bool         `json:"replayed"`
}

// HeartbeatRequest carries the batch of client-observed events.
type HeartbeatRequest struct {
	Events []ClientEvent `json:"events" binding:"omitempty,max=200,dive"`
}

// HeartbeatResult tells the client whether it may continue.
type HeartbeatResult struct {
	Continue    bool      `json:"continue"`
	RemainingMs int64     `json:"remaining_ms"`
	FlagCount   int       `json:"flag_count"`
	ServerTime  time.Time `json:"server_time"`
}

// MonitorStatus is the proctor-facing status of a session.
type MonitorStatus string

const (
	MonitorStatusInProgress MonitorStatus = "in_progress"
	MonitorStatusSubmitted  MonitorStatus = "submitted"
	MonitorStatusExpired    MonitorStatus = "expired"
)

// MonitorSession is one row of the proctor monitor view.
type MonitorSession struct {
	SessionID     uuid.UUID     `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	Status        MonitorStatus `json:"status"`
	RemainingMs   int64         `json:"remaining_ms"`
	RemainingMin  int           `json:"remaining_min"`
	FlagCount     int           `json:"flag_count"`
	Flags         []string      `json:"flags"`
	Score         *int          `json:"score"`
	Total         *int          `json:"total"`
	StartedAt     time.Time     `json:"started_at"`
	SubmittedAt   *time.Time    `json:"submitted_at"`
}

// MonitorSnapshot is the proctor monitor view of one exam.
type MonitorSnapshot struct {
	ExamID      uuid.UUID        `json:"exam_id"`
	ExamCode    string           `json:"exam_code"`
	Title       string           `json:"title"`
	GeneratedAt time.Time        `json:"generated_at"`
	Sessions    []MonitorSession `json:"sessions"`
}
