package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/cache"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/handler"
	"github.com/stemsi/labexam-backend/internal/middleware"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository/memory"
	"github.com/stemsi/labexam-backend/internal/service"
	"github.com/stemsi/labexam-backend/internal/validator"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

type testApp struct {
	t       *testing.T
	engine  *gin.Engine
	clock   *fakeClock
	auth    *service.AuthService
	store   *memory.Store
	admin   string
	prof    string
	profID  uuid.UUID
	limiter *middleware.RateLimiter
}

// envelope mirrors response.Response with a raw data field.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
	Metadata struct {
		RequestID string `json:"request_id"`
	} `json:"metadata"`
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	validator.Setup()

	cfg := &config.Config{
		GinMode:               gin.TestMode,
		JWTSecret:             "router-test-secret",
		JWTExpiry:             time.Hour,
		SessionTokenTTL:       time.Hour,
		BcryptCost:            4,
		SubmitPolicy:          config.SubmitPolicyReplay,
		HeartbeatRatePerMin:   600,
		MonitorRefreshSeconds: 10,
	}
	st := memory.NewStore()
	stores := service.Stores{
		Users: st.Users, Devices: st.Devices, Exams: st.Exams, Questions: st.Questions,
		Sessions: st.Sessions, Responses: st.Responses, Events: st.Events,
	}
	log := zerolog.Nop()
	clk := &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	bus := cache.NewLocalMonitorBus()

	authSvc := service.NewAuthService(cfg, stores.Users, log)
	examSvc := service.NewExamService(stores, cache.NopContentCache{}, log)
	deviceSvc := service.NewDeviceService(stores, clk, log)
	sessionSvc := service.NewSessionService(cfg, stores, examSvc, deviceSvc, authSvc, bus, clk, log)
	monitorSvc := service.NewMonitorService(stores, examSvc, clk)

	limiter := middleware.NewRateLimiter(cfg.HeartbeatRatePerMin, 50, middleware.BySession)
	t.Cleanup(limiter.Stop)

	handlers := &Handlers{
		Auth:    handler.NewAuthHandler(authSvc, log),
		Client:  handler.NewClientHandler(sessionSvc, examSvc, deviceSvc, log),
		Exam:    handler.NewExamHandler(examSvc, log),
		Monitor: handler.NewMonitorHandler(monitorSvc, bus, time.Second, log),
		Admin:   handler.NewAdminHandler(authSvc, deviceSvc, monitorSvc, log),
		WS:      handler.NewWSHandler(sessionSvc, limiter, log, nil),
		System:  handler.NewSystemHandler(nil, log),
	}
	engine := SetupRouter(Services{Auth: authSvc, Device: deviceSvc}, handlers, limiter, cfg)

	app := &testApp{t: t, engine: engine, clock: clk, auth: authSvc, store: st, limiter: limiter}
	ctx := context.Background()

	admin, err := authSvc.CreateUser(ctx, "admin@lab.test", "secret123", "Lab Admin", "IT", "", model.UserRoleAdmin)
	require.NoError(t, err)
	app.admin, err = authSvc.GenerateUserToken(admin)
	require.NoError(t, err)

	prof, err := authSvc.CreateUser(ctx, "prof@lab.test", "secret123", "Prof Ada", "CS", "", model.UserRoleProfessor)
	require.NoError(t, err)
	app.prof, err = authSvc.GenerateUserToken(prof)
	require.NoError(t, err)
	app.profID = prof.ID

	return app
}

// call performs a JSON request. headers are name/value pairs.
func (a *testApp) call(method, path string, body any, headers ...string) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func bearer(token string) []string { return []string{"Authorization", "Bearer " + token} }

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func errCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

// publishExam authors and publishes an exam of n questions as the
// professor. The correct option is always index 2.
func (a *testApp) publishExam(n, minutes int) model.Exam {
	a.t.Helper()
	status, env := a.call(http.MethodPost, "/api/v1/exams",
		map[string]any{"title": "Operating Systems Lab", "duration_minutes": minutes}, bearer(a.prof)...)
	require.Equal(a.t, http.StatusCreated, status, errCode(env))
	exam := decode[struct{ Exam model.Exam }](a.t, env.Data).Exam

	questions := make([]map[string]any, n)
	for i := range questions {
		questions[i] = map[string]any{
			"text":        "Which scheduler is preemptive?",
			"options":     []string{"FCFS", "SJF", "Round Robin", "None"},
			"correct_idx": 2,
		}
	}
	status, env = a.call(http.MethodPost, "/api/v1/exams/"+exam.ID.String()+"/questions",
		map[string]any{"questions": questions}, bearer(a.prof)...)
	require.Equal(a.t, http.StatusCreated, status, errCode(env))

	status, env = a.call(http.MethodPut, "/api/v1/exams/"+exam.ID.String()+"/publish", nil, bearer(a.prof)...)
	require.Equal(a.t, http.StatusOK, status, errCode(env))
	return decode[struct{ Exam model.Exam }](a.t, env.Data).Exam
}

// startSession starts a session by exam code and returns the result.
func (a *testApp) startSession(code, roll string, headers ...string) model.StartSessionResult {
	a.t.Helper()
	status, env := a.call(http.MethodPost, "/api/v1/client/start",
		map[string]any{"roll_number": roll, "exam_code": code}, headers...)
	require.Contains(a.t, []int{http.StatusCreated, http.StatusOK}, status, errCode(env))
	return decode[model.StartSessionResult](a.t, env.Data)
}
