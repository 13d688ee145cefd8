package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/labexam-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by position.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return listQuestions(ctx, r.pool, examID)
}

func listQuestions(ctx context.Context, q dbtx, examID uuid.UUID) ([]model.Question, error) {
	rows, err := q.Query(ctx,
		`SELECT id, exam_id, text, options, correct_idx, position
		 FROM questions WHERE exam_id = $1
		 ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var qq model.Question
		if err := rows.Scan(&qq.ID, &qq.ExamID, &qq.Text, &qq.Options, &qq.CorrectIdx, &qq.Position); err != nil {
			return nil, err
		}
		questions = append(questions, qq)
	}
	return questions, rows.Err()
}

// Append adds questions after the exam's current last position and returns the
// new question count. The exam row is locked for the duration so concurrent
// appends keep positions dense. Returns ErrNotFound for an unknown exam and
// ErrConflict when the exam is no longer a DRAFT.
func (r *QuestionRepository) Append(ctx context.Context, examID uuid.UUID, questions []model.Question) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var status model.ExamStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM exams WHERE id = $1 FOR UPDATE`, examID).Scan(&status); err != nil {
		return 0, notFound(err)
	}
	if status != model.ExamStatusDraft {
		return 0, ErrConflict
	}

	var last int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), 0) FROM questions WHERE exam_id = $1`, examID).Scan(&last); err != nil {
		return 0, err
	}

	for i := range questions {
		q := &questions[i]
		q.ExamID = examID
		q.Position = last + i + 1
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, text, options, correct_idx, position)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			q.ExamID, q.Text, q.Options, q.CorrectIdx, q.Position,
		).Scan(&q.ID)
		if err != nil {
			return 0, fmt.Errorf("insert question %d: %w", q.Position, err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE exams SET updated_at = now() WHERE id = $1`, examID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return last + len(questions), nil
}
