package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
)

// The store interfaces below are implemented by the PostgreSQL repositories
// and by the in-memory store. Both report repository.ErrNotFound,
// repository.ErrConflict and repository.ErrAlreadySubmitted.

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	UpdateDepartment(ctx context.Context, id uuid.UUID, department string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Count(ctx context.Context) (int, error)
}

type DeviceStore interface {
	Register(ctx context.Context, hostname, mac string, at time.Time) (*model.Device, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Device, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context) ([]model.Device, error)
	Approve(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountApproved(ctx context.Context) (int, error)
}

type ExamStore interface {
	Create(ctx context.Context, e *model.Exam) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetByCode(ctx context.Context, code string) (*model.Exam, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListByProfessor(ctx context.Context, professorID uuid.UUID) ([]model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
	Publish(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	Append(ctx context.Context, examID uuid.UUID, questions []model.Question) (int, error)
}

// SessionStore owns the single terminal transition of a session (Finalize).
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetByExamAndParticipant(ctx context.Context, examID uuid.UUID, participantID string) (*model.Session, error)
	Create(ctx context.Context, s *model.Session) error
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Session, error)
	ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	Finalize(ctx context.Context, sessionID uuid.UUID, answers []model.AnswerInput,
		reason model.SubmitReason, at time.Time, grade model.Grader) (*model.Session, error)
	CountCompleted(ctx context.Context) (int, error)
}

type ResponseStore interface {
	Save(ctx context.Context, r *model.Response) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Response, error)
}

type EventStore interface {
	Append(ctx context.Context, sessionID uuid.UUID, events []model.EventLog, flags []string) (int, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.EventLog, error)
	ListFlagged(ctx context.Context, kinds []string, limit int) ([]model.FlaggedEvent, error)
}

// Stores bundles one implementation of every store.
type Stores struct {
	Users     UserStore
	Devices   DeviceStore
	Exams     ExamStore
	Questions QuestionStore
	Sessions  SessionStore
	Responses ResponseStore
	Events    EventStore
}
