package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
)

// Exam codes are short, case-insensitive and avoid the look-alikes I, O, 0 and 1.
const (
	ExamCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	ExamCodeLength   = 6
)

// IsExamCode reports whether code, upper-cased, is a well-formed exam code.
func IsExamCode(code string) bool {
	if len(code) != ExamCodeLength {
		return false
	}
	for _, r := range strings.ToUpper(code) {
		if !strings.ContainsRune(ExamCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// Exam represents an exam entity. Only DRAFT exams accept question edits.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	ExamCode        string     `json:"exam_code"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          ExamStatus `json:"status"`
	ProfessorID     uuid.UUID  `json:"professor_id"`
	QuestionCount   int        `json:"question_count"`
	SessionCount    int        `json:"session_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Duration returns the exam duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// IsPublished reports whether the exam is open for attempts.
func (e *Exam) IsPublished() bool {
	return e.Status == ExamStatusPublished
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	Description     string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
}

// ExamDetail is an exam with its full question list, answer key included.
// Only ever returned to the owning professor.
type ExamDetail struct {
	Exam
	Questions []Question `json:"questions"`
}

// ExamSummary is the public view of a published exam shown to lab clients.
type ExamSummary struct {
	ID              uuid.UUID `json:"id"`
	ExamCode        string    `json:"exam_code"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	QuestionCount   int       `json:"question_count"`
}

// Summary strips owner and lifecycle fields for the client-facing listing.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		ExamCode:        e.ExamCode,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		QuestionCount:   e.QuestionCount,
	}
}

// ExamPayload is the cached exam content sent to participants (no correct answers).
type ExamPayload struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	ExamCode  string               `json:"exam_code"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForStudent `json:"questions"`
}
