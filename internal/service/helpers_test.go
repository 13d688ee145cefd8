package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/cache"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	cfg      *config.Config
	store    *memory.Store
	stores   Stores
	clock    *fakeClock
	bus      *cache.LocalMonitorBus
	auth     *AuthService
	exams    *ExamService
	devices  *DeviceService
	sessions *SessionService
	monitor  *MonitorService
	prof     Actor
}

func newTestEnv(t *testing.T, policy string) *testEnv {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:       "test-secret",
		JWTExpiry:       time.Hour,
		SessionTokenTTL: time.Hour,
		BcryptCost:      4,
		SubmitPolicy:    policy,
	}
	st := memory.NewStore()
	stores := Stores{
		Users: st.Users, Devices: st.Devices, Exams: st.Exams, Questions: st.Questions,
		Sessions: st.Sessions, Responses: st.Responses, Events: st.Events,
	}
	log := zerolog.Nop()
	clk := newFakeClock()
	bus := cache.NewLocalMonitorBus()

	auth := NewAuthService(cfg, stores.Users, log)
	exams := NewExamService(stores, cache.NopContentCache{}, log)
	devices := NewDeviceService(stores, clk, log)

	return &testEnv{
		cfg:      cfg,
		store:    st,
		stores:   stores,
		clock:    clk,
		bus:      bus,
		auth:     auth,
		exams:    exams,
		devices:  devices,
		sessions: NewSessionService(cfg, stores, exams, devices, auth, bus, clk, log),
		monitor:  NewMonitorService(stores, exams, clk),
		prof:     Actor{UserID: uuid.New(), Role: model.UserRoleProfessor},
	}
}

// publishedExam creates a published exam with n questions whose correct
// option is always index 1.
func (e *testEnv) publishedExam(t *testing.T, n, minutes int) (*model.Exam, []model.Question) {
	t.Helper()
	exam := e.draftExam(t, n, minutes)
	_, err := e.exams.Publish(context.Background(), e.prof, exam.ID)
	require.NoError(t, err)
	qs, err := e.store.Questions.ListByExam(context.Background(), exam.ID)
	require.NoError(t, err)
	exam.Status = model.ExamStatusPublished
	return exam, qs
}

func (e *testEnv) draftExam(t *testing.T, n, minutes int) *model.Exam {
	t.Helper()
	ctx := context.Background()
	exam, err := e.exams.Create(ctx, e.prof, model.CreateExamRequest{Title: "Data Structures", DurationMinutes: minutes})
	require.NoError(t, err)

	if n > 0 {
		req := model.AddQuestionsRequest{}
		for i := 0; i < n; i++ {
			req.Questions = append(req.Questions, model.AddQuestionRequest{
				Text:       "Question",
				Options:    []string{"A", "B", "C", "D"},
				CorrectIdx: intPtr(1),
			})
		}
		_, err = e.exams.AddQuestions(ctx, e.prof, exam.ID, req)
		require.NoError(t, err)
	}
	return exam
}

func (e *testEnv) start(t *testing.T, examID uuid.UUID, participant string) *model.StartSessionResult {
	t.Helper()
	res, err := e.sessions.Start(context.Background(), StartInput{ExamID: &examID, ParticipantID: participant})
	require.NoError(t, err)
	return res
}

func (e *testEnv) eventTypes(t *testing.T, sessionID uuid.UUID) []string {
	t.Helper()
	events, err := e.store.Events.ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventType
	}
	return out
}

func intPtr(v int) *int { return &v }
