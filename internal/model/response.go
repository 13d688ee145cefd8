package model

import (
	"time"

	"github.com/google/uuid"
)

// Response is the selected option of one question within one session.
// A nil SelectedIdx means unanswered. Unique per (SessionID, QuestionID).
type Response struct {
	SessionID   uuid.UUID `json:"session_id"`
	QuestionID  uuid.UUID `json:"question_id"`
	SelectedIdx *int      `json:"selected_idx"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AnswerInput is a single answer as sent by the client.
type AnswerInput struct {
	QuestionID  uuid.UUID `json:"question_id" binding:"required"`
	SelectedIdx *int      `json:"selected_idx" binding:"omitempty,min=0,max=5"`
}
