package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/labexam-backend/internal/model"
)

const examColumns = `e.id, e.exam_code, e.title, e.description, e.duration_minutes, e.status,
	e.professor_id, e.created_at, e.updated_at,
	(SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
	(SELECT COUNT(*) FROM sessions s WHERE s.exam_id = e.id)`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.ExamCode, &e.Title, &e.Description, &e.DurationMinutes, &e.Status,
		&e.ProfessorID, &e.CreatedAt, &e.UpdatedAt, &e.QuestionCount, &e.SessionCount)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

func collectExams(rows pgx.Rows) ([]model.Exam, error) {
	defer rows.Close()
	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// Create inserts a DRAFT exam. A taken exam code yields ErrConflict.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exams (exam_code, title, description, duration_minutes, status, professor_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.ExamCode, e.Title, e.Description, e.DurationMinutes, model.ExamStatusDraft, e.ProfessorID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert exam: %w", err)
	}
	e.Status = model.ExamStatusDraft
	return nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id))
}

// GetByCode retrieves an exam by its (upper-case) exam code.
func (r *ExamRepository) GetByCode(ctx context.Context, code string) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams e WHERE e.exam_code = $1`, code))
}

// CodeExists reports whether an exam code is taken.
func (r *ExamRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM exams WHERE exam_code = $1)`, code).Scan(&exists)
	return exists, err
}

// ListByProfessor lists the exams owned by a professor, newest first.
func (r *ExamRepository) ListByProfessor(ctx context.Context, professorID uuid.UUID) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.professor_id = $1 ORDER BY e.created_at DESC`, professorID)
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// ListPublished lists all exams open for attempts.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.status = $1 ORDER BY e.created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// Publish moves a DRAFT exam to PUBLISHED. Any other current status yields ErrConflict.
func (r *ExamRepository) Publish(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		id, model.ExamStatusPublished, model.ExamStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// Count returns the number of exams.
func (r *ExamRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`).Scan(&n)
	return n, err
}
