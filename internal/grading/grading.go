// Package grading computes scores from the server-side answer key.
package grading

import (
	"math"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
)

// Grade counts responses whose selection equals the question's correct index.
// Total is the exam's question count, so unanswered questions only lower the
// percentage. Responses for questions outside the key are ignored.
func Grade(questions []model.Question, responses []model.Response) model.Grade {
	key := make(map[uuid.UUID]int, len(questions))
	for _, q := range questions {
		key[q.ID] = q.CorrectIdx
	}

	score := 0
	for _, r := range responses {
		if r.SelectedIdx == nil {
			continue
		}
		correct, ok := key[r.QuestionID]
		if ok && *r.SelectedIdx == correct {
			score++
		}
	}

	total := len(questions)
	return model.Grade{
		Score:      score,
		Total:      total,
		Percentage: Percentage(score, total),
	}
}

// Percentage is score/total*100 rounded to one decimal, 0 when total is 0.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(score) / float64(total) * 100
	return math.Round(p*10) / 10
}

var _ model.Grader = Grade
