package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/labexam-backend/internal/model"
)

// ResponseRepository handles per-question answers.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// Save upserts one answer. The session row is share-locked so a save can never
// interleave with the terminal transition; a terminal session yields
// ErrAlreadySubmitted.
func (r *ResponseRepository) Save(ctx context.Context, resp *model.Response) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var submittedAt *time.Time
	err = tx.QueryRow(ctx, `SELECT submitted_at FROM sessions WHERE id = $1 FOR SHARE`, resp.SessionID).Scan(&submittedAt)
	if err != nil {
		return notFound(err)
	}
	if submittedAt != nil {
		return ErrAlreadySubmitted
	}

	if err := upsertResponse(ctx, tx, resp.SessionID, resp.QuestionID, resp.SelectedIdx, resp.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListBySession returns all saved answers of a session.
func (r *ResponseRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Response, error) {
	return listResponses(ctx, r.pool, sessionID)
}

func upsertResponse(ctx context.Context, q dbtx, sessionID, questionID uuid.UUID, selected *int, at time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO responses (session_id, question_id, selected_idx, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id)
		 DO UPDATE SET selected_idx = EXCLUDED.selected_idx, updated_at = EXCLUDED.updated_at`,
		sessionID, questionID, selected, at)
	return err
}

func listResponses(ctx context.Context, q dbtx, sessionID uuid.UUID) ([]model.Response, error) {
	rows, err := q.Query(ctx,
		`SELECT session_id, question_id, selected_idx, updated_at
		 FROM responses WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []model.Response{}
	for rows.Next() {
		var resp model.Response
		if err := rows.Scan(&resp.SessionID, &resp.QuestionID, &resp.SelectedIdx, &resp.UpdatedAt); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}
