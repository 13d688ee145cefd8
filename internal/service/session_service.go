package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/cache"
	"github.com/stemsi/labexam-backend/internal/clock"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/grading"
	"github.com/stemsi/labexam-backend/internal/integrity"
	"github.com/stemsi/labexam-backend/internal/metrics"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
)

// StartInput identifies the exam and participant of a start call.
// Exactly one of ExamID or ExamCode is needed; ExamID wins when both are set.
type StartInput struct {
	ExamID        *uuid.UUID
	ExamCode      string
	ParticipantID string
	DeviceID      *uuid.UUID
	UserID        *uuid.UUID
}

// SessionService is the session lifecycle manager: start/resume, autosave,
// heartbeat, submit and server-forced expiry. Every deadline decision is
// taken from the injected clock, never from the client.
type SessionService struct {
	exams     ExamStore
	sessions  SessionStore
	responses ResponseStore
	events    EventStore
	examSvc   *ExamService
	deviceSvc *DeviceService
	authSvc   *AuthService
	bus       cache.MonitorBus
	clock     clock.Clock
	grader    model.Grader
	policy    string
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	cfg *config.Config,
	stores Stores,
	examSvc *ExamService,
	deviceSvc *DeviceService,
	authSvc *AuthService,
	bus cache.MonitorBus,
	clk clock.Clock,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		exams:     stores.Exams,
		sessions:  stores.Sessions,
		responses: stores.Responses,
		events:    stores.Events,
		examSvc:   examSvc,
		deviceSvc: deviceSvc,
		authSvc:   authSvc,
		bus:       bus,
		clock:     clk,
		grader:    grading.Grade,
		policy:    cfg.SubmitPolicy,
		log:       log.With().Str("component", "session_service").Logger(),
	}
}

// now is the server clock truncated to the storage precision, so a deadline
// computed at creation equals the one recomputed after a reload.
func (s *SessionService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// Now is the server clock as clients see it in server_time fields.
func (s *SessionService) Now() time.Time {
	return s.now()
}

// Start creates a session or resumes the participant's existing one. Resuming
// never moves started_at, so a restarted client keeps its original deadline.
func (s *SessionService) Start(ctx context.Context, in StartInput) (*model.StartSessionResult, error) {
	participant := strings.TrimSpace(in.ParticipantID)
	if participant == "" {
		return nil, ErrParticipantRequired
	}
	exam, err := s.lookupExam(ctx, in)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished() {
		return nil, ErrExamNotPublished
	}

	if in.DeviceID != nil {
		if _, err := s.deviceSvc.Authorize(ctx, *in.DeviceID); err != nil {
			return nil, err
		}
	}

	existing, err := s.sessions.GetByExamAndParticipant(ctx, exam.ID, participant)
	if err == nil {
		return s.resume(ctx, exam, existing)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	sess := &model.Session{
		ExamID:        exam.ID,
		ParticipantID: participant,
		DeviceID:      in.DeviceID,
		UserID:        in.UserID,
		StartedAt:     s.now(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// A concurrent start for the same participant won; resume it.
			existing, fetchErr := s.sessions.GetByExamAndParticipant(ctx, exam.ID, participant)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			return s.resume(ctx, exam, existing)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsStarted.WithLabelValues("created").Inc()
	s.publish(ctx, cache.MonitorEvent{Type: cache.MonitorSessionStarted, ExamID: exam.ID, SessionID: sess.ID, ParticipantID: participant})
	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", exam.ID.String()).
		Str("participant_id", participant).
		Msg("Session started")

	return s.startResult(exam, sess, false)
}

func (s *SessionService) resume(ctx context.Context, exam *model.Exam, sess *model.Session) (*model.StartSessionResult, error) {
	if sess.IsTerminal() {
		return nil, ErrAlreadySubmitted
	}
	metrics.SessionsStarted.WithLabelValues("resumed").Inc()
	s.publish(ctx, cache.MonitorEvent{
		Type: cache.MonitorSessionResumed, ExamID: exam.ID, SessionID: sess.ID,
		ParticipantID: sess.ParticipantID, FlagCount: len(sess.Flags),
	})
	return s.startResult(exam, sess, true)
}

func (s *SessionService) startResult(exam *model.Exam, sess *model.Session, resuming bool) (*model.StartSessionResult, error) {
	token, err := s.authSvc.GenerateSessionToken(sess.ID, exam.ID, exam.Duration())
	if err != nil {
		return nil, err
	}
	auth := clock.For(sess.StartedAt, exam.DurationMinutes)
	return &model.StartSessionResult{
		SessionID:       sess.ID,
		SessionToken:    token,
		ExamID:          exam.ID,
		ExamCode:        exam.ExamCode,
		DurationMinutes: exam.DurationMinutes,
		StartedAt:       sess.StartedAt,
		Deadline:        auth.Deadline(),
		RemainingMs:     auth.RemainingMs(s.clock.Now()),
		Resuming:        resuming,
	}, nil
}

func (s *SessionService) lookupExam(ctx context.Context, in StartInput) (*model.Exam, error) {
	var (
		exam *model.Exam
		err  error
	)
	switch {
	case in.ExamID != nil:
		exam, err = s.exams.GetByID(ctx, *in.ExamID)
	case strings.TrimSpace(in.ExamCode) != "":
		exam, err = s.exams.GetByCode(ctx, NormalizeExamCode(in.ExamCode))
	default:
		return nil, ErrExamRequired
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// load fetches a session and its exam.
func (s *SessionService) load(ctx context.Context, sessionID uuid.UUID) (*model.Session, *model.Exam, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	return sess, exam, nil
}

// Content returns the ordered questions of an active session, without the
// answer key, each carrying the participant's saved selection.
func (s *SessionService) Content(ctx context.Context, sessionID uuid.UUID) (*model.ExamContent, error) {
	sess, exam, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsTerminal() {
		return nil, ErrAlreadySubmitted
	}

	payload, err := s.examSvc.Payload(ctx, exam)
	if err != nil {
		return nil, err
	}
	saved, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	selected := make(map[uuid.UUID]*int, len(saved))
	for _, r := range saved {
		selected[r.QuestionID] = r.SelectedIdx
	}

	questions := make([]model.QuestionForStudent, len(payload.Questions))
	for i, q := range payload.Questions {
		q.SelectedIdx = selected[q.ID]
		questions[i] = q
	}

	auth := clock.For(sess.StartedAt, exam.DurationMinutes)
	return &model.ExamContent{
		ExamTitle:       exam.Title,
		ExamCode:        exam.ExamCode,
		DurationMinutes: exam.DurationMinutes,
		StartedAt:       sess.StartedAt,
		Deadline:        auth.Deadline(),
		RemainingMs:     auth.RemainingMs(s.clock.Now()),
		Questions:       questions,
	}, nil
}

// SaveResponse upserts one answer. A nil selection clears the answer.
func (s *SessionService) SaveResponse(ctx context.Context, sessionID uuid.UUID, in model.AnswerInput) (*model.Response, error) {
	sess, exam, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsTerminal() {
		return nil, ErrAlreadySubmitted
	}
	now := s.now()
	if clock.For(sess.StartedAt, exam.DurationMinutes).IsExpired(now) {
		return nil, ErrSessionExpired
	}
	if err := s.validateAnswers(ctx, exam, []model.AnswerInput{in}); err != nil {
		return nil, err
	}

	resp := &model.Response{SessionID: sessionID, QuestionID: in.QuestionID, SelectedIdx: in.SelectedIdx, UpdatedAt: now}
	if err := s.responses.Save(ctx, resp); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadySubmitted):
			return nil, ErrAlreadySubmitted
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("save response: %w", err)
	}
	metrics.ResponsesSaved.Inc()
	return resp, nil
}

func (s *SessionService) validateAnswers(ctx context.Context, exam *model.Exam, answers []model.AnswerInput) error {
	if len(answers) == 0 {
		return nil
	}
	payload, err := s.examSvc.Payload(ctx, exam)
	if err != nil {
		return err
	}
	optionCount := make(map[uuid.UUID]int, len(payload.Questions))
	for _, q := range payload.Questions {
		optionCount[q.ID] = len(q.Options)
	}
	for _, a := range answers {
		n, ok := optionCount[a.QuestionID]
		if !ok {
			return fmt.Errorf("question %s: %w", a.QuestionID, ErrInvalidAnswer)
		}
		if a.SelectedIdx != nil && (*a.SelectedIdx < 0 || *a.SelectedIdx >= n) {
			return fmt.Errorf("question %s option %d: %w", a.QuestionID, *a.SelectedIdx, ErrInvalidAnswer)
		}
	}
	return nil
}

// Heartbeat stores the client's event batch, extends the flag list and tells
// the client whether it may continue. Continue is false once the session is
// terminal or its deadline has passed on the server clock.
func (s *SessionService) Heartbeat(ctx context.Context, sessionID uuid.UUID, events []model.ClientEvent) (*model.HeartbeatResult, error) {
	if err := integrity.Check(events); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	sess, exam, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	batch := integrity.Classify(sessionID, events, now)
	flagCount, err := s.events.Append(ctx, sessionID, batch.Events, batch.Flags)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("append events: %w", err)
	}

	auth := clock.For(sess.StartedAt, exam.DurationMinutes)
	cont := !sess.IsTerminal() && !auth.IsExpired(now)
	remaining := auth.RemainingMs(now)
	if sess.IsTerminal() {
		remaining = 0
	}

	if !sess.IsTerminal() && len(batch.Flags) > 0 {
		for _, kind := range batch.Flags {
			metrics.FlagsRaised.WithLabelValues(kind).Inc()
		}
		s.publish(ctx, cache.MonitorEvent{
			Type: cache.MonitorFlagged, ExamID: exam.ID, SessionID: sessionID,
			ParticipantID: sess.ParticipantID, FlagCount: flagCount,
		})
	}
	metrics.Heartbeats.WithLabelValues(fmt.Sprint(cont)).Inc()

	return &model.HeartbeatResult{
		Continue:    cont,
		RemainingMs: remaining,
		FlagCount:   flagCount,
		ServerTime:  now,
	}, nil
}

// Submit finalizes the session. The grade is computed exactly once; a submit on
// an already terminal session returns the stored grade (replay policy) or
// ErrAlreadySubmitted (reject policy). After the deadline the submitted answers
// are ignored and the responses saved before expiry are graded.
func (s *SessionService) Submit(ctx context.Context, sessionID uuid.UUID, answers []model.AnswerInput) (*model.SubmitResult, error) {
	sess, exam, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsTerminal() {
		return s.replay(sess)
	}

	now := s.now()
	reason := model.SubmitReasonSubmitted
	if clock.For(sess.StartedAt, exam.DurationMinutes).IsExpired(now) {
		reason = model.SubmitReasonExpired
		answers = nil
	} else if err := s.validateAnswers(ctx, exam, answers); err != nil {
		return nil, err
	}

	final, err := s.finalize(ctx, exam.ID, sessionID, answers, reason, now)
	if errors.Is(err, ErrAlreadySubmitted) {
		current, loadErr := s.sessions.GetByID(ctx, sessionID)
		if loadErr != nil {
			return nil, fmt.Errorf("reload session: %w", loadErr)
		}
		return s.replay(current)
	}
	if err != nil {
		return nil, err
	}
	return submitResult(final, false), nil
}

func (s *SessionService) replay(sess *model.Session) (*model.SubmitResult, error) {
	metrics.SubmitReplays.Inc()
	if s.policy == config.SubmitPolicyReject {
		return nil, ErrAlreadySubmitted
	}
	return submitResult(sess, true), nil
}

func submitResult(sess *model.Session, replayed bool) *model.SubmitResult {
	res := &model.SubmitResult{Replayed: replayed}
	if sess.Score != nil {
		res.Score = *sess.Score
	}
	if sess.Total != nil {
		res.Total = *sess.Total
	}
	if sess.SubmittedAt != nil {
		res.SubmittedAt = *sess.SubmittedAt
	}
	if sess.SubmitReason != nil {
		res.SubmitReason = *sess.SubmitReason
	}
	res.Percentage = grading.Percentage(res.Score, res.Total)
	return res
}

// finalize runs the terminal transition and reports it.
func (s *SessionService) finalize(ctx context.Context, examID, sessionID uuid.UUID, answers []model.AnswerInput,
	reason model.SubmitReason, at time.Time) (*model.Session, error) {
	final, err := s.sessions.Finalize(ctx, sessionID, answers, reason, at, s.grader)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadySubmitted):
			return nil, ErrAlreadySubmitted
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("finalize session: %w", err)
	}

	metrics.SessionsFinalized.WithLabelValues(string(reason)).Inc()
	evType := cache.MonitorSubmitted
	if reason == model.SubmitReasonExpired {
		evType = cache.MonitorExpired
	}
	s.publish(ctx, cache.MonitorEvent{
		Type: evType, ExamID: examID, SessionID: sessionID, ParticipantID: final.ParticipantID,
		FlagCount: len(final.Flags), Score: final.Score, Total: final.Total,
	})
	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("reason", string(reason)).
		Int("score", *final.Score).
		Int("total", *final.Total).
		Msg("Session finalized")
	return final, nil
}

// ExpireOverdue submits, on the participants' behalf, every open session whose
// deadline passed more than grace ago. Saved responses are graded as they are.
// It returns how many sessions this call finalized.
func (s *SessionService) ExpireOverdue(ctx context.Context, grace time.Duration, limit int) (int, error) {
	now := s.now()
	ids, err := s.sessions.ListOverdue(ctx, now.Add(-grace), limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue sessions: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		sess, err := s.sessions.GetByID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Overdue session vanished")
			continue
		}
		_, err = s.finalize(ctx, sess.ExamID, id, nil, model.SubmitReasonExpired, now)
		if errors.Is(err, ErrAlreadySubmitted) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to expire session")
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *SessionService) publish(ctx context.Context, ev cache.MonitorEvent) {
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("type", ev.Type).Msg("Failed to publish monitor event")
	}
}
