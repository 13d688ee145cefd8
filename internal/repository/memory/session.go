package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
)

// SessionRepository is the in-memory session store.
type SessionRepository struct{ db *db }

func (r *SessionRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s = copySession(s)
	return &s, nil
}

func (r *SessionRepository) GetByExamAndParticipant(_ context.Context, examID uuid.UUID, participantID string) (*model.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	id, ok := r.db.participants[participantKey{examID, participantID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s := copySession(r.db.sessions[id])
	return &s, nil
}

func (r *SessionRepository) Create(_ context.Context, s *model.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := participantKey{s.ExamID, s.ParticipantID}
	if _, taken := r.db.participants[key]; taken {
		return repository.ErrConflict
	}
	s.ID = uuid.New()
	if s.Flags == nil {
		s.Flags = []string{}
	}
	r.db.sessions[s.ID] = copySession(*s)
	r.db.participants[key] = s.ID

	details, _ := json.Marshal(map[string]any{"participant_id": s.ParticipantID})
	r.db.appendEvent(model.EventLog{
		SessionID:  s.ID,
		EventType:  model.EventExamStarted,
		Details:    details,
		RecordedAt: s.StartedAt,
	})
	return nil
}

func (r *SessionRepository) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Session, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	sessions := []model.Session{}
	for _, s := range r.db.sessions {
		if s.ExamID == examID {
			sessions = append(sessions, copySession(s))
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ParticipantID < sessions[j].ParticipantID })
	return sessions, nil
}

func (r *SessionRepository) ListOverdue(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var overdue []model.Session
	for _, s := range r.db.sessions {
		if s.IsTerminal() {
			continue
		}
		e := r.db.exams[s.ExamID]
		if s.StartedAt.Add(e.Duration()).Before(cutoff) {
			overdue = append(overdue, s)
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].StartedAt.Before(overdue[j].StartedAt) })

	var ids []uuid.UUID
	for _, s := range overdue {
		if len(ids) == limit {
			break
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (r *SessionRepository) Finalize(_ context.Context, sessionID uuid.UUID, answers []model.AnswerInput,
	reason model.SubmitReason, at time.Time, grade model.Grader) (*model.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if s.IsTerminal() {
		return nil, repository.ErrAlreadySubmitted
	}

	for _, a := range answers {
		r.db.responses[responseKey{sessionID, a.QuestionID}] = model.Response{
			SessionID:   sessionID,
			QuestionID:  a.QuestionID,
			SelectedIdx: copyInt(a.SelectedIdx),
			UpdatedAt:   at,
		}
	}

	g := grade(r.db.questions[s.ExamID], r.db.sessionResponses(sessionID))

	s.SubmittedAt = &at
	s.SubmitReason = &reason
	s.Score = &g.Score
	s.Total = &g.Total
	r.db.sessions[sessionID] = copySession(s)

	eventType := model.EventExamSubmitted
	if reason == model.SubmitReasonExpired {
		eventType = model.EventExamExpired
	}
	details, _ := json.Marshal(g)
	r.db.appendEvent(model.EventLog{SessionID: sessionID, EventType: eventType, Details: details, RecordedAt: at})

	out := copySession(s)
	return &out, nil
}

func (r *SessionRepository) CountCompleted(_ context.Context) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	n := 0
	for _, s := range r.db.sessions {
		if s.IsTerminal() {
			n++
		}
	}
	return n, nil
}

// ResponseRepository is the in-memory response store.
type ResponseRepository struct{ db *db }

func (r *ResponseRepository) Save(_ context.Context, resp *model.Response) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[resp.SessionID]
	if !ok {
		return repository.ErrNotFound
	}
	if s.IsTerminal() {
		return repository.ErrAlreadySubmitted
	}
	stored := *resp
	stored.SelectedIdx = copyInt(resp.SelectedIdx)
	r.db.responses[responseKey{resp.SessionID, resp.QuestionID}] = stored
	return nil
}

func (r *ResponseRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Response, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.sessionResponses(sessionID), nil
}

// sessionResponses must be called with mu held.
func (d *db) sessionResponses(sessionID uuid.UUID) []model.Response {
	out := []model.Response{}
	for k, resp := range d.responses {
		if k.session == sessionID {
			resp.SelectedIdx = copyInt(resp.SelectedIdx)
			out = append(out, resp)
		}
	}
	return out
}

// EventRepository is the in-memory event log.
type EventRepository struct{ db *db }

func (r *EventRepository) Append(_ context.Context, sessionID uuid.UUID, events []model.EventLog, flags []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[sessionID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	for _, ev := range events {
		ev.SessionID = sessionID
		r.db.appendEvent(ev)
	}
	if !s.IsTerminal() && len(flags) > 0 {
		s.Flags = append(append([]string{}, s.Flags...), flags...)
		r.db.sessions[sessionID] = s
	}
	return len(s.Flags), nil
}

func (r *EventRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.EventLog, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []model.EventLog{}
	for _, ev := range r.db.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *EventRepository) ListFlagged(_ context.Context, kinds []string, limit int) ([]model.FlaggedEvent, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	wanted := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
	}
	out := []model.FlaggedEvent{}
	for i := len(r.db.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := r.db.events[i]
		if !wanted[ev.EventType] {
			continue
		}
		s := r.db.sessions[ev.SessionID]
		out = append(out, model.FlaggedEvent{EventLog: ev, ParticipantID: s.ParticipantID, ExamID: s.ExamID})
	}
	return out, nil
}
