package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/labexam-backend/internal/model"
)

// EventRepository handles the session event log and flag accumulation.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func insertEvent(ctx context.Context, q dbtx, sessionID uuid.UUID, eventType string, details json.RawMessage, at time.Time) error {
	_, err := q.Exec(ctx,
		`INSERT INTO event_logs (session_id, event_type, details, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, eventType, details, at)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", eventType, err)
	}
	return nil
}

// Append stores a heartbeat batch and extends the session's flag list in one
// transaction, returning the resulting flag count. Events are stored even when
// the session is already terminal, but flags then stay as they were.
func (r *EventRepository) Append(ctx context.Context, sessionID uuid.UUID, events []model.EventLog, flags []string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var (
		submittedAt *time.Time
		count       int
	)
	err = tx.QueryRow(ctx,
		`SELECT submitted_at, cardinality(flags) FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&submittedAt, &count)
	if err != nil {
		return 0, notFound(err)
	}

	if len(events) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"event_logs"},
			[]string{"session_id", "event_type", "details", "client_timestamp", "recorded_at"},
			pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
				ev := events[i]
				return []any{sessionID, ev.EventType, ev.Details, ev.ClientTimestamp, ev.RecordedAt}, nil
			}),
		)
		if err != nil {
			return 0, fmt.Errorf("copy events: %w", err)
		}
	}

	if submittedAt == nil && len(flags) > 0 {
		err = tx.QueryRow(ctx,
			`UPDATE sessions SET flags = flags || $2::text[] WHERE id = $1
			 RETURNING cardinality(flags)`, sessionID, flags,
		).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("append flags: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// ListBySession returns a session's events in recording order.
func (r *EventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.EventLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, event_type, details, client_timestamp, recorded_at
		 FROM event_logs WHERE session_id = $1
		 ORDER BY recorded_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.EventLog{}
	for rows.Next() {
		var ev model.EventLog
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &ev.Details, &ev.ClientTimestamp, &ev.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListFlagged returns the most recent events of the given kinds across all sessions.
func (r *EventRepository) ListFlagged(ctx context.Context, kinds []string, limit int) ([]model.FlaggedEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT el.id, el.session_id, el.event_type, el.details, el.client_timestamp, el.recorded_at,
		        s.participant_id, s.exam_id
		 FROM event_logs el
		 JOIN sessions s ON s.id = el.session_id
		 WHERE el.event_type = ANY($1)
		 ORDER BY el.recorded_at DESC, el.id DESC
		 LIMIT $2`, kinds, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.FlaggedEvent{}
	for rows.Next() {
		var ev model.FlaggedEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &ev.Details, &ev.ClientTimestamp, &ev.RecordedAt,
			&ev.ParticipantID, &ev.ExamID); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
