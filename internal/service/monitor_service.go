package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/clock"
	"github.com/stemsi/labexam-backend/internal/integrity"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
	"golang.org/x/sync/errgroup"
)

const flaggedFeedLimit = 100

// MonitorService builds the proctor and admin read models.
type MonitorService struct {
	stores  Stores
	examSvc *ExamService
	clock   clock.Clock
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(stores Stores, examSvc *ExamService, clk clock.Clock) *MonitorService {
	return &MonitorService{stores: stores, examSvc: examSvc, clock: clk}
}

// Snapshot returns every session of an owned exam with its server-derived
// status, remaining time, flags and score.
func (s *MonitorService) Snapshot(ctx context.Context, actor Actor, examID uuid.UUID) (*model.MonitorSnapshot, error) {
	exam, err := s.examSvc.GetOwned(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, exam)
}

func (s *MonitorService) snapshot(ctx context.Context, exam *model.Exam) (*model.MonitorSnapshot, error) {
	sessions, err := s.stores.Sessions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.clock.Now()
	rows := make([]model.MonitorSession, len(sessions))
	for i := range sessions {
		rows[i] = monitorRow(&sessions[i], exam, now)
	}
	return &model.MonitorSnapshot{
		ExamID:      exam.ID,
		ExamCode:    exam.ExamCode,
		Title:       exam.Title,
		GeneratedAt: now,
		Sessions:    rows,
	}, nil
}

func monitorRow(sess *model.Session, exam *model.Exam, now time.Time) model.MonitorSession {
	auth := clock.For(sess.StartedAt, exam.DurationMinutes)
	row := model.MonitorSession{
		SessionID:     sess.ID,
		ParticipantID: sess.ParticipantID,
		FlagCount:     len(sess.Flags),
		Flags:         sess.Flags,
		Score:         sess.Score,
		Total:         sess.Total,
		StartedAt:     sess.StartedAt,
		SubmittedAt:   sess.SubmittedAt,
	}
	switch sess.State(auth.IsExpired(now)) {
	case model.SessionStateSubmitted:
		row.Status = model.MonitorStatusSubmitted
	case model.SessionStateExpired:
		row.Status = model.MonitorStatusExpired
	default:
		row.Status = model.MonitorStatusInProgress
		row.RemainingMs = auth.RemainingMs(now)
		row.RemainingMin = auth.RemainingMinutes(now)
	}
	return row
}

// SessionEvents returns the full event log of one session of an owned exam.
func (s *MonitorService) SessionEvents(ctx context.Context, actor Actor, examID, sessionID uuid.UUID) ([]model.EventLog, error) {
	if _, err := s.examSvc.GetOwned(ctx, actor, examID); err != nil {
		return nil, err
	}
	sess, err := s.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.ExamID != examID {
		return nil, ErrSessionNotFound
	}
	return s.stores.Events.ListBySession(ctx, sessionID)
}

// Stats gathers the admin dashboard counters concurrently.
func (s *MonitorService) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.Exams, err = s.stores.Exams.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.Users, err = s.stores.Users.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.ApprovedDevices, err = s.stores.Devices.CountApproved(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.CompletedSessions, err = s.stores.Sessions.CountCompleted(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}
	return &stats, nil
}

// FlaggedEvents returns the most recent flaggable events across all exams.
func (s *MonitorService) FlaggedEvents(ctx context.Context) ([]model.FlaggedEvent, error) {
	return s.stores.Events.ListFlagged(ctx, integrity.FlaggableKinds(), flaggedFeedLimit)
}
