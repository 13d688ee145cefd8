package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
)

// ExamRepository is the in-memory exam store.
type ExamRepository struct{ db *db }

// withCounts must be called with mu held.
func (d *db) withCounts(e model.Exam) model.Exam {
	e.QuestionCount = len(d.questions[e.ID])
	n := 0
	for _, s := range d.sessions {
		if s.ExamID == e.ID {
			n++
		}
	}
	e.SessionCount = n
	return e
}

func (r *ExamRepository) Create(_ context.Context, e *model.Exam) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.exams {
		if existing.ExamCode == e.ExamCode {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	e.ID = uuid.New()
	e.Status = model.ExamStatusDraft
	e.CreatedAt, e.UpdatedAt = now, now
	r.db.exams[e.ID] = *e
	return nil
}

func (r *ExamRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	e, ok := r.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e = r.db.withCounts(e)
	return &e, nil
}

func (r *ExamRepository) GetByCode(_ context.Context, code string) (*model.Exam, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, e := range r.db.exams {
		if e.ExamCode == code {
			e = r.db.withCounts(e)
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ExamRepository) CodeExists(_ context.Context, code string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, e := range r.db.exams {
		if e.ExamCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *ExamRepository) list(match func(model.Exam) bool) []model.Exam {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	exams := []model.Exam{}
	for _, e := range r.db.exams {
		if match(e) {
			exams = append(exams, r.db.withCounts(e))
		}
	}
	sort.Slice(exams, func(i, j int) bool { return exams[i].CreatedAt.After(exams[j].CreatedAt) })
	return exams
}

func (r *ExamRepository) ListByProfessor(_ context.Context, professorID uuid.UUID) ([]model.Exam, error) {
	return r.list(func(e model.Exam) bool { return e.ProfessorID == professorID }), nil
}

func (r *ExamRepository) ListPublished(_ context.Context) ([]model.Exam, error) {
	return r.list(func(e model.Exam) bool { return e.IsPublished() }), nil
}

func (r *ExamRepository) Publish(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.exams[id]
	if !ok || e.Status != model.ExamStatusDraft {
		return repository.ErrConflict
	}
	e.Status = model.ExamStatusPublished
	e.UpdatedAt = time.Now().UTC()
	r.db.exams[id] = e
	return nil
}

func (r *ExamRepository) Count(_ context.Context) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.exams), nil
}

// QuestionRepository is the in-memory question store.
type QuestionRepository struct{ db *db }

func (r *QuestionRepository) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return append([]model.Question{}, r.db.questions[examID]...), nil
}

func (r *QuestionRepository) Append(_ context.Context, examID uuid.UUID, questions []model.Question) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	e, ok := r.db.exams[examID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if e.Status != model.ExamStatusDraft {
		return 0, repository.ErrConflict
	}

	existing := r.db.questions[examID]
	last := 0
	if n := len(existing); n > 0 {
		last = existing[n-1].Position
	}
	for i := range questions {
		q := &questions[i]
		q.ID = uuid.New()
		q.ExamID = examID
		q.Position = last + i + 1
		q.Options = append([]string{}, q.Options...)
		existing = append(existing, *q)
	}
	r.db.questions[examID] = existing
	e.UpdatedAt = time.Now().UTC()
	r.db.exams[examID] = e
	return len(existing), nil
}
