package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/grading"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedExam(t *testing.T, st *Store) *model.Exam {
	t.Helper()
	ctx := context.Background()
	e := &model.Exam{ExamCode: "ABC234", Title: "Networks", DurationMinutes: 30, ProfessorID: uuid.New()}
	require.NoError(t, st.Exams.Create(ctx, e))

	one, two := 1, 0
	_, err := st.Questions.Append(ctx, e.ID, []model.Question{
		{Text: "q1", Options: []string{"a", "b"}, CorrectIdx: one},
		{Text: "q2", Options: []string{"a", "b", "c"}, CorrectIdx: two},
	})
	require.NoError(t, err)
	require.NoError(t, st.Exams.Publish(ctx, e.ID))
	return e
}

func TestSessionCreate_ConcurrentDuplicatesYieldOneRow(t *testing.T) {
	st := NewStore()
	e := seedExam(t, st)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.Sessions.Create(ctx, &model.Session{ExamID: e.ID, ParticipantID: "R-1", StartedAt: time.Now()})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else {
				assert.ErrorIs(t, err, repository.ErrConflict)
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 19, conflicts)
	sessions, err := st.Sessions.ListByExam(ctx, e.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestFinalize_OnlyOnce(t *testing.T) {
	st := NewStore()
	e := seedExam(t, st)
	ctx := context.Background()
	s := &model.Session{ExamID: e.ID, ParticipantID: "R-2", StartedAt: time.Now()}
	require.NoError(t, st.Sessions.Create(ctx, s))

	qs, err := st.Questions.ListByExam(ctx, e.ID)
	require.NoError(t, err)
	answer := 1
	final, err := st.Sessions.Finalize(ctx, s.ID,
		[]model.AnswerInput{{QuestionID: qs[0].ID, SelectedIdx: &answer}},
		model.SubmitReasonSubmitted, time.Now(), grading.Grade)
	require.NoError(t, err)
	require.NotNil(t, final.Score)
	assert.Equal(t, 1, *final.Score)
	assert.Equal(t, 2, *final.Total)

	_, err = st.Sessions.Finalize(ctx, s.ID, nil, model.SubmitReasonExpired, time.Now(), grading.Grade)
	assert.ErrorIs(t, err, repository.ErrAlreadySubmitted)

	err = st.Responses.Save(ctx, &model.Response{SessionID: s.ID, QuestionID: qs[1].ID, UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, repository.ErrAlreadySubmitted)

	got, err := st.Sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmitReasonSubmitted, *got.SubmitReason)
	assert.Equal(t, 1, *got.Score)
}

func TestEventAppend_FlagsFrozenAfterTerminal(t *testing.T) {
	st := NewStore()
	e := seedExam(t, st)
	ctx := context.Background()
	s := &model.Session{ExamID: e.ID, ParticipantID: "R-3", StartedAt: time.Now()}
	require.NoError(t, st.Sessions.Create(ctx, s))

	n, err := st.Events.Append(ctx, s.ID, []model.EventLog{{EventType: "focus_lost", RecordedAt: time.Now()}}, []string{"focus_lost"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = st.Sessions.Finalize(ctx, s.ID, nil, model.SubmitReasonSubmitted, time.Now(), grading.Grade)
	require.NoError(t, err)

	n, err = st.Events.Append(ctx, s.ID, []model.EventLog{{EventType: "focus_lost", RecordedAt: time.Now()}}, []string{"focus_lost"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := st.Events.ListBySession(ctx, s.ID)
	require.NoError(t, err)
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.EventType)
	}
	assert.Equal(t, []string{model.EventExamStarted, "focus_lost", model.EventExamSubmitted, "focus_lost"}, kinds)
}

func TestQuestionAppend_DensePositionsAndDraftOnly(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	e := &model.Exam{ExamCode: "XYZ789", Title: "OS", DurationMinutes: 10, ProfessorID: uuid.New()}
	require.NoError(t, st.Exams.Create(ctx, e))

	total, err := st.Questions.Append(ctx, e.ID, []model.Question{{Text: "a", Options: []string{"x", "y"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	total, err = st.Questions.Append(ctx, e.ID, []model.Question{
		{Text: "b", Options: []string{"x", "y"}},
		{Text: "c", Options: []string{"x", "y"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	qs, err := st.Questions.ListByExam(ctx, e.ID)
	require.NoError(t, err)
	for i, q := range qs {
		assert.Equal(t, i+1, q.Position)
	}

	require.NoError(t, st.Exams.Publish(ctx, e.ID))
	_, err = st.Questions.Append(ctx, e.ID, []model.Question{{Text: "d", Options: []string{"x", "y"}}})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.ErrorIs(t, st.Exams.Publish(ctx, e.ID), repository.ErrConflict)
}

func TestListOverdue(t *testing.T) {
	st := NewStore()
	e := seedExam(t, st)
	ctx := context.Background()
	now := time.Now()

	late := &model.Session{ExamID: e.ID, ParticipantID: "late", StartedAt: now.Add(-time.Hour)}
	fresh := &model.Session{ExamID: e.ID, ParticipantID: "fresh", StartedAt: now}
	require.NoError(t, st.Sessions.Create(ctx, late))
	require.NoError(t, st.Sessions.Create(ctx, fresh))

	ids, err := st.Sessions.ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{late.ID}, ids)
}
