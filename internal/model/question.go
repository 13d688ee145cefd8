package model

import (
	"github.com/google/uuid"
)

const (
	MinOptions = 2
	MaxOptions = 6
)

// Question represents a single multiple-choice exam question.
type Question struct {
	ID         uuid.UUID `json:"id"`
	ExamID     uuid.UUID `json:"exam_id"`
	Text       string    `json:"text"`
	Options    []string  `json:"options"`
	CorrectIdx int       `json:"correct_idx"`
	Position   int       `json:"position"`
}

// ValidOption reports whether idx addresses one of the question's options.
func (q *Question) ValidOption(idx int) bool {
	return idx >= 0 && idx < len(q.Options)
}

// ForStudent strips the answer key.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		Position: q.Position,
	}
}

// QuestionForStudent is a question without the correct answer, sent to participants.
type QuestionForStudent struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	Options     []string  `json:"options"`
	Position    int       `json:"position"`
	SelectedIdx *int      `json:"selected_idx"`
}

// AddQuestionRequest describes one question to append to a draft exam.
type AddQuestionRequest struct {
	Text       string   `json:"text" binding:"required,min=1,max=2000"`
	Options    []string `json:"options" binding:"required,min=2,max=6,dive,required,max=500"`
	CorrectIdx *int     `json:"correct_idx" binding:"required,min=0,max=5"`
}

// AddQuestionsRequest is the payload for appending questions to an exam.
type AddQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,max=200,dive"`
}

// AddQuestionsResult reports how many questions were appended and the new total.
type AddQuestionsResult struct {
	Added int `json:"added"`
	Total int `json:"total"`
}
