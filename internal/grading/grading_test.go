package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func buildExam(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:         uuid.New(),
			Options:    []string{"a", "b", "c", "d"},
			CorrectIdx: i % 4,
			Position:   i + 1,
		}
	}
	return qs
}

func TestGrade_NineOfTenAnswered(t *testing.T) {
	qs := buildExam(10)
	var responses []model.Response
	for _, q := range qs[:9] {
		responses = append(responses, model.Response{QuestionID: q.ID, SelectedIdx: intPtr(q.CorrectIdx)})
	}

	g := Grade(qs, responses)

	assert.Equal(t, 9, g.Score)
	assert.Equal(t, 10, g.Total)
	assert.Equal(t, 90.0, g.Percentage)
}

func TestGrade_TotalIsQuestionCountNotAnswered(t *testing.T) {
	qs := buildExam(7)
	responses := []model.Response{
		{QuestionID: qs[0].ID, SelectedIdx: intPtr(qs[0].CorrectIdx)},
		{QuestionID: qs[1].ID, SelectedIdx: nil},
	}

	g := Grade(qs, responses)

	assert.Equal(t, 1, g.Score)
	assert.Equal(t, 7, g.Total)
}

func TestGrade_WrongAndForeignAnswersDoNotScore(t *testing.T) {
	qs := buildExam(3)
	responses := []model.Response{
		{QuestionID: qs[0].ID, SelectedIdx: intPtr((qs[0].CorrectIdx + 1) % 4)},
		{QuestionID: uuid.New(), SelectedIdx: intPtr(0)},
		{QuestionID: qs[2].ID, SelectedIdx: intPtr(qs[2].CorrectIdx)},
	}

	g := Grade(qs, responses)

	assert.Equal(t, 1, g.Score)
	assert.Equal(t, 3, g.Total)
	assert.Equal(t, 33.3, g.Percentage)
}

func TestGrade_EmptyExam(t *testing.T) {
	g := Grade(nil, nil)

	assert.Equal(t, model.Grade{}, g)
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		score, total int
		want         float64
	}{
		{0, 0, 0},
		{0, 5, 0},
		{5, 5, 100},
		{2, 3, 66.7},
		{1, 8, 12.5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Percentage(tc.score, tc.total), "%d/%d", tc.score, tc.total)
	}
}
