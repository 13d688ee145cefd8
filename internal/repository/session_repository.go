package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/labexam-backend/internal/model"
)

const sessionColumns = `id, exam_id, participant_id, device_id, user_id, started_at,
	submitted_at, submit_reason, flags, score, total`

// SessionRepository handles session data access, including the terminal
// transition.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(&s.ID, &s.ExamID, &s.ParticipantID, &s.DeviceID, &s.UserID, &s.StartedAt,
		&s.SubmittedAt, &s.SubmitReason, &s.Flags, &s.Score, &s.Total)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetByID retrieves a session.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// GetByExamAndParticipant retrieves the session of one participant for one exam.
func (r *SessionRepository) GetByExamAndParticipant(ctx context.Context, examID uuid.UUID, participantID string) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE exam_id = $1 AND participant_id = $2`,
		examID, participantID))
}

// Create inserts a new session and its exam_started event in one transaction.
// If another request already created the session for the same (exam, participant)
// it returns ErrConflict so the caller can resume instead.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO sessions (exam_id, participant_id, device_id, user_id, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, participant_id) DO NOTHING
		 RETURNING id`,
		s.ExamID, s.ParticipantID, s.DeviceID, s.UserID, s.StartedAt,
	).Scan(&s.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}

	details, _ := json.Marshal(map[string]any{"participant_id": s.ParticipantID})
	if err := insertEvent(ctx, tx, s.ID, model.EventExamStarted, details, s.StartedAt); err != nil {
		return err
	}
	if s.Flags == nil {
		s.Flags = []string{}
	}
	return tx.Commit(ctx)
}

// ListByExam lists all sessions of an exam ordered by participant.
func (r *SessionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE exam_id = $1 ORDER BY participant_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// ListOverdue returns ids of non-terminal sessions whose deadline is before cutoff.
func (r *SessionRepository) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id
		 FROM sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.submitted_at IS NULL
		   AND s.started_at + make_interval(mins => e.duration_minutes) < $1
		 ORDER BY s.started_at
		 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Finalize performs the single terminal transition of a session: it writes the
// final answers, grades every saved response with grade and stamps the
// submission, all under the session row lock. A session that is already
// terminal yields ErrAlreadySubmitted and is left untouched.
func (r *SessionRepository) Finalize(ctx context.Context, sessionID uuid.UUID, answers []model.AnswerInput,
	reason model.SubmitReason, at time.Time, grade model.Grader) (*model.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		examID      uuid.UUID
		submittedAt *time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT exam_id, submitted_at FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&examID, &submittedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if submittedAt != nil {
		return nil, ErrAlreadySubmitted
	}

	for _, a := range answers {
		if err := upsertResponse(ctx, tx, sessionID, a.QuestionID, a.SelectedIdx, at); err != nil {
			return nil, err
		}
	}

	questions, err := listQuestions(ctx, tx, examID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	responses, err := listResponses(ctx, tx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	g := grade(questions, responses)

	tag, err := tx.Exec(ctx,
		`UPDATE sessions
		 SET submitted_at = $2, submit_reason = $3, score = $4, total = $5
		 WHERE id = $1 AND submitted_at IS NULL`,
		sessionID, at, reason, g.Score, g.Total)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadySubmitted
	}

	eventType := model.EventExamSubmitted
	if reason == model.SubmitReasonExpired {
		eventType = model.EventExamExpired
	}
	details, _ := json.Marshal(g)
	if err := insertEvent(ctx, tx, sessionID, eventType, details, at); err != nil {
		return nil, err
	}

	s, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// CountCompleted returns the number of terminal sessions.
func (r *SessionRepository) CountCompleted(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE submitted_at IS NOT NULL`).Scan(&n)
	return n, err
}
