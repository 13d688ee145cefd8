package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_CreatesSessionWithServerDeadline(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	exam, _ := env.publishedExam(t, 3, 45)

	res := env.start(t, exam.ID, "CS-101")

	assert.False(t, res.Resuming)
	assert.Equal(t, env.clock.Now(), res.StartedAt)
	assert.Equal(t, env.clock.Now().Add(45*time.Minute), res.Deadline)
	assert.Equal(t, int64(45*60*1000), res.RemainingMs)
	assert.NotEmpty(t, res.SessionToken)

	claims, err := env.auth.ValidateToken(res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeSession, claims.TokenType)
	assert.Equal(t, res.SessionID, claims.SessionID)

	assert.Equal(t, []string{model.EventExamStarted}, env.eventTypes(t, res.SessionID))
}

func TestStart_ResumeKeepsOriginalDeadline(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	exam, _ := env.publishedExam(t, 2, 30)

	first := env.start(t, exam.ID, "CS-102")
	env.clock.Advance(12 * time.Minute)
	second := env.start(t, exam.ID, "  CS-102 ")

	assert.True(t, second.Resuming)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.StartedAt, second.StartedAt)
	assert.Equal(t, first.Deadline, second.Deadline)
	assert.Equal(t, int64(18*60*1000), second.RemainingMs)
}

func TestStart_ByCodeIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	exam, _ := env.publishedExam(t, 1, 10)

	res, err := env.sessions.Start(context.Background(), StartInput{ExamCode: " " + lower(exam.ExamCode), ParticipantID: "CS-1"})
	require.NoError(t, err)
	assert.Equal(t, exam.ID, res.ExamID)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestStart_ConcurrentDuplicatesShareOneSession(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	exam, _ := env.publishedExam(t, 2, 30)

	const callers = 25
	var (
		wg  sync.WaitGroup
		ids = make([]uuid.UUID, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.sessions.Start(context.Background(), StartInput{ExamID: &exam.ID, ParticipantID: "CS-200"})
			if assert.NoError(t, err) {
				ids[i] = res.SessionID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	sessions, err := env.store.Sessions.ListByExam(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Equal(t, []string{model.EventExamStarted}, env.eventTypes(t, ids[0]))
}

func TestStart_Failures(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()

	missing := uuid.New()
	_, err := env.sessions.Start(ctx, StartInput{ExamID: &missing, ParticipantID: "p"})
	assert.ErrorIs(t, err, ErrExamNotFound)

	_, err = env.sessions.Start(ctx, StartInput{ParticipantID: "p"})
	assert.ErrorIs(t, err, ErrExamRequired)

	draft := env.draftExam(t, 1, 10)
	_, err = env.sessions.Start(ctx, StartInput{ExamID: &draft.ID, ParticipantID: "p"})
	assert.ErrorIs(t, err, ErrExamNotPublished)

	exam, _ := env.publishedExam(t, 1, 10)
	res := env.start(t, exam.ID, "done")
	_, err = env.sessions.Submit(ctx, res.SessionID, nil)
	require.NoError(t, err)
	_, err = env.sessions.Start(ctx, StartInput{ExamID: &exam.ID, ParticipantID: "done"})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestStart_BlankParticipantIsRejected(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 1, 10)

	for _, roll := range []string{"", "   ", "\t", " \n "} {
		_, err := env.sessions.Start(ctx, StartInput{ExamID: &exam.ID, ParticipantID: roll})
		assert.ErrorIs(t, err, ErrParticipantRequired, "roll %q", roll)
	}

	_, err := env.store.Sessions.GetByExamAndParticipant(ctx, exam.ID, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStart_DeviceBinding(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 1, 10)

	unknown := uuid.New()
	_, err := env.sessions.Start(ctx, StartInput{ExamID: &exam.ID, ParticipantID: "p", DeviceID: &unknown})
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	reg, err := env.devices.Register(ctx, model.RegisterDeviceRequest{Hostname: "lab-07"})
	require.NoError(t, err)
	assert.Equal(t, model.DeviceStatusPending, reg.Status)
	_, err = env.sessions.Start(ctx, StartInput{ExamID: &exam.ID, ParticipantID: "p", DeviceID: &reg.DeviceID})
	assert.ErrorIs(t, err, ErrDeviceNotApproved)

	require.NoError(t, env.devices.Approve(ctx, reg.DeviceID))
	res, err := env.sessions.Start(ctx, StartInput{ExamID: &exam.ID, ParticipantID: "p", DeviceID: &reg.DeviceID})
	require.NoError(t, err)

	sess, err := env.store.Sessions.GetByID(ctx, res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess.DeviceID)
	assert.Equal(t, reg.DeviceID, *sess.DeviceID)
}

func TestContent_HidesKeyAndCarriesSelections(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, qs := env.publishedExam(t, 3, 20)
	res := env.start(t, exam.ID, "CS-300")

	_, err := env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[1].ID, SelectedIdx: intPtr(3)})
	require.NoError(t, err)

	content, err := env.sessions.Content(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, content.Questions, 3)
	for i, q := range content.Questions {
		assert.Equal(t, i+1, q.Position)
	}
	assert.Nil(t, content.Questions[0].SelectedIdx)
	require.NotNil(t, content.Questions[1].SelectedIdx)
	assert.Equal(t, 3, *content.Questions[1].SelectedIdx)
	assert.Equal(t, res.Deadline, content.Deadline)
}

func TestSaveResponse_Rules(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, qs := env.publishedExam(t, 2, 10)
	res := env.start(t, exam.ID, "CS-400")

	_, err := env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[0].ID, SelectedIdx: intPtr(4)})
	assert.ErrorIs(t, err, ErrInvalidAnswer)
	_, err = env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: uuid.New(), SelectedIdx: intPtr(0)})
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[0].ID, SelectedIdx: intPtr(0)})
	require.NoError(t, err)
	_, err = env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[0].ID, SelectedIdx: intPtr(2)})
	require.NoError(t, err)
	saved, err := env.store.Responses.ListBySession(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 2, *saved[0].SelectedIdx)

	_, err = env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[0].ID, SelectedIdx: nil})
	require.NoError(t, err)
	saved, err = env.store.Responses.ListBySession(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Nil(t, saved[0].SelectedIdx)

	env.clock.Advance(10*time.Minute + time.Second)
	_, err = env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[1].ID, SelectedIdx: intPtr(1)})
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = env.sessions.SaveResponse(ctx, uuid.New(), model.AnswerInput{QuestionID: qs[1].ID})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubmit_GradesNineOfTen(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, qs := env.publishedExam(t, 10, 60)
	res := env.start(t, exam.ID, "CS-500")

	var answers []model.AnswerInput
	for _, q := range qs[:9] {
		answers = append(answers, model.AnswerInput{QuestionID: q.ID, SelectedIdx: intPtr(1)})
	}
	env.clock.Advance(20 * time.Minute)

	out, err := env.sessions.Submit(ctx, res.SessionID, answers)
	require.NoError(t, err)
	assert.Equal(t, 9, out.Score)
	assert.Equal(t, 10, out.Total)
	assert.Equal(t, 90.0, out.Percentage)
	assert.Equal(t, model.SubmitReasonSubmitted, out.SubmitReason)
	assert.False(t, out.Replayed)

	_, err = env.sessions.Content(ctx, res.SessionID)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmit_ReplayPolicyReturnsStoredGrade(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, qs := env.publishedExam(t, 4, 30)
	res := env.start(t, exam.ID, "CS-600")

	first, err := env.sessions.Submit(ctx, res.SessionID, []model.AnswerInput{{QuestionID: qs[0].ID, SelectedIdx: intPtr(1)}})
	require.NoError(t, err)

	// A retried submit with a better answer sheet must not change the grade.
	better := make([]model.AnswerInput, len(qs))
	for i, q := range qs {
		better[i] = model.AnswerInput{QuestionID: q.ID, SelectedIdx: intPtr(1)}
	}
	env.clock.Advance(time.Minute)
	second, err := env.sessions.Submit(ctx, res.SessionID, better)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.SubmittedAt, second.SubmittedAt)

	sess, err := env.store.Sessions.GetByID(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, *sess.Score)
}

func TestSubmit_RejectPolicy(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReject)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 2, 30)
	res := env.start(t, exam.ID, "CS-601")

	_, err := env.sessions.Submit(ctx, res.SessionID, nil)
	require.NoError(t, err)
	_, err = env.sessions.Submit(ctx, res.SessionID, nil)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestHeartbeat_AfterDeadlineStopsThenSubmitsOnce(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, qs := env.publishedExam(t, 3, 1)
	res := env.start(t, exam.ID, "CS-700")

	_, err := env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[0].ID, SelectedIdx: intPtr(1)})
	require.NoError(t, err)

	hb, err := env.sessions.Heartbeat(ctx, res.SessionID, nil)
	require.NoError(t, err)
	assert.True(t, hb.Continue)

	env.clock.Advance(time.Minute + time.Second)
	hb, err = env.sessions.Heartbeat(ctx, res.SessionID, nil)
	require.NoError(t, err)
	assert.False(t, hb.Continue)
	assert.Equal(t, int64(0), hb.RemainingMs)

	// Answers sent with a late submit are ignored; the saved one is graded.
	all := []model.AnswerInput{
		{QuestionID: qs[0].ID, SelectedIdx: intPtr(1)},
		{QuestionID: qs[1].ID, SelectedIdx: intPtr(1)},
		{QuestionID: qs[2].ID, SelectedIdx: intPtr(1)},
	}
	out, err := env.sessions.Submit(ctx, res.SessionID, all)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Score)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, model.SubmitReasonExpired, out.SubmitReason)

	again, err := env.sessions.Submit(ctx, res.SessionID, all)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, 1, again.Score)

	terminal := 0
	for _, typ := range env.eventTypes(t, res.SessionID) {
		if typ == model.EventExamSubmitted || typ == model.EventExamExpired {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestHeartbeat_FlagsAccumulateAndNeverReset(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 1, 30)
	res := env.start(t, exam.ID, "CS-800")

	batches := [][]model.ClientEvent{
		{{Type: "focus_lost"}, {Type: "focus_gained"}},
		{},
		{{Type: "blocked_shortcut"}, {Type: "clipboard_blocked"}},
		{{Type: "mouse_moved"}},
		{{Type: "display_changed"}, {Type: "focus_lost"}},
	}
	prev := 0
	for i, batch := range batches {
		env.clock.Advance(30 * time.Second)
		hb, err := env.sessions.Heartbeat(ctx, res.SessionID, batch)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, hb.FlagCount, prev, "batch %d", i)
		prev = hb.FlagCount
	}
	assert.Equal(t, 5, prev)

	sess, err := env.store.Sessions.GetByID(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"focus_lost", "blocked_shortcut", "clipboard_blocked", "display_changed", "focus_lost"}, sess.Flags)
}

func TestHeartbeat_ServerTimeIgnoresClientClock(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 1, 30)
	res := env.start(t, exam.ID, "CS-801")

	future := env.clock.Now().Add(24 * time.Hour)
	hb, err := env.sessions.Heartbeat(ctx, res.SessionID, []model.ClientEvent{{Type: "focus_lost", Timestamp: &future}})
	require.NoError(t, err)
	assert.True(t, hb.Continue)

	events, err := env.store.Events.ListBySession(ctx, res.SessionID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, env.clock.Now(), last.RecordedAt)
	assert.Equal(t, future, *last.ClientTimestamp)
}

func TestHeartbeat_OversizedKindRejectsWholeBatch(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 1, 30)
	res := env.start(t, exam.ID, "CS-803")

	_, err := env.sessions.Heartbeat(ctx, res.SessionID, []model.ClientEvent{
		{Type: "focus_lost"},
		{Type: strings.Repeat("x", 300)},
	})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = env.sessions.Heartbeat(ctx, res.SessionID, make([]model.ClientEvent, 201))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	assert.Equal(t, []string{model.EventExamStarted}, env.eventTypes(t, res.SessionID))
	sess, err := env.store.Sessions.GetByID(ctx, res.SessionID)
	require.NoError(t, err)
	assert.Empty(t, sess.Flags)

	hb, err := env.sessions.Heartbeat(ctx, res.SessionID, []model.ClientEvent{{Type: strings.Repeat("x", 64)}})
	require.NoError(t, err)
	assert.True(t, hb.Continue)
}

func TestHeartbeat_AfterSubmitKeepsFlagsFrozen(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 1, 30)
	res := env.start(t, exam.ID, "CS-802")

	_, err := env.sessions.Heartbeat(ctx, res.SessionID, []model.ClientEvent{{Type: "focus_lost"}})
	require.NoError(t, err)
	_, err = env.sessions.Submit(ctx, res.SessionID, nil)
	require.NoError(t, err)

	hb, err := env.sessions.Heartbeat(ctx, res.SessionID, []model.ClientEvent{{Type: "focus_lost"}})
	require.NoError(t, err)
	assert.False(t, hb.Continue)
	assert.Equal(t, 1, hb.FlagCount)
}

func TestExpireOverdue_ForcesSubmissionWithSavedResponses(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, qs := env.publishedExam(t, 2, 5)
	late := env.start(t, exam.ID, "late")
	_, err := env.sessions.SaveResponse(ctx, late.SessionID, model.AnswerInput{QuestionID: qs[1].ID, SelectedIdx: intPtr(1)})
	require.NoError(t, err)

	env.clock.Advance(4 * time.Minute)
	fresh := env.start(t, exam.ID, "fresh")

	env.clock.Advance(90 * time.Second)
	n, err := env.sessions.ExpireOverdue(ctx, 30*time.Second, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "within grace")

	env.clock.Advance(time.Minute)
	n, err = env.sessions.ExpireOverdue(ctx, 30*time.Second, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sess, err := env.store.Sessions.GetByID(ctx, late.SessionID)
	require.NoError(t, err)
	require.True(t, sess.IsTerminal())
	assert.Equal(t, model.SubmitReasonExpired, *sess.SubmitReason)
	assert.Equal(t, 1, *sess.Score)

	other, err := env.store.Sessions.GetByID(ctx, fresh.SessionID)
	require.NoError(t, err)
	assert.False(t, other.IsTerminal())

	n, err = env.sessions.ExpireOverdue(ctx, 30*time.Second, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmit_RacesForcedExpiryExactlyOnce(t *testing.T) {
	for round := 0; round < 20; round++ {
		env := newTestEnv(t, config.SubmitPolicyReplay)
		ctx := context.Background()
		exam, qs := env.publishedExam(t, 2, 1)
		res := env.start(t, exam.ID, "racer")
		_, err := env.sessions.SaveResponse(ctx, res.SessionID, model.AnswerInput{QuestionID: qs[0].ID, SelectedIdx: intPtr(1)})
		require.NoError(t, err)
		env.clock.Advance(2 * time.Minute)

		var wg sync.WaitGroup
		var submitted *model.SubmitResult
		wg.Add(2)
		go func() {
			defer wg.Done()
			out, err := env.sessions.Submit(ctx, res.SessionID, nil)
			if assert.NoError(t, err) {
				submitted = out
			}
		}()
		go func() {
			defer wg.Done()
			_, err := env.sessions.ExpireOverdue(ctx, 0, 10)
			assert.NoError(t, err)
		}()
		wg.Wait()

		require.NotNil(t, submitted)
		assert.Equal(t, 1, submitted.Score)
		terminal := 0
		for _, typ := range env.eventTypes(t, res.SessionID) {
			if typ == model.EventExamSubmitted || typ == model.EventExamExpired {
				terminal++
			}
		}
		assert.Equal(t, 1, terminal, "round %d", round)
	}
}

func TestSubmit_UnknownSession(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)

	_, err := env.sessions.Submit(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
