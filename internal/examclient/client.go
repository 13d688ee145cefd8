// Package examclient is a typed client for the lab workstation API.
package examclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
)

const (
	headerDeviceID  = "X-Device-ID"
	headerRequestID = "X-Request-ID"
)

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Fields    map[string]string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

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

// Client talks to one server. It keeps the device id and the session token
// obtained from Register and Start. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client

	mu           sync.RWMutex
	deviceID     *uuid.UUID
	userToken    string
	sessionToken string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDeviceID sets a previously registered device id.
func WithDeviceID(id uuid.UUID) Option {
	return func(c *Client) { c.deviceID = &id }
}

// New creates a client for baseURL, e.g. "http://exam-server:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceID returns the registered device id, if any.
func (c *Client) DeviceID() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.deviceID == nil {
		return uuid.Nil, false
	}
	return *c.deviceID, true
}

// SessionToken returns the token of the current session.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

// SetSessionToken restores a session token, e.g. after a client restart.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = token
}

// ─── Auth ───────────────────────────────────────────────────────────────────

// Login authenticates a user. The token is sent with Start to bind the session.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var out model.LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", authNone,
		model.LoginRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.userToken = out.Token
	c.mu.Unlock()
	return &out, nil
}

// ─── Device ─────────────────────────────────────────────────────────────────

// Register announces this workstation. Re-registering the same hostname
// returns the existing device.
func (c *Client) Register(ctx context.Context, hostname, mac string) (*model.RegisterDeviceResult, error) {
	var out model.RegisterDeviceResult
	err := c.do(ctx, http.MethodPost, "/api/v1/client/register", authNone,
		model.RegisterDeviceRequest{Hostname: hostname, MacAddress: mac}, &out)
	if err != nil {
		return nil, err
	}
	id := out.DeviceID
	c.mu.Lock()
	c.deviceID = &id
	c.mu.Unlock()
	return &out, nil
}

// ListExams returns the published exams. Requires an approved device.
func (c *Client) ListExams(ctx context.Context) ([]model.ExamSummary, error) {
	var out struct {
		Exams []model.ExamSummary `json:"exams"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/client/exams", authNone, nil, &out); err != nil {
		return nil, err
	}
	return out.Exams, nil
}

// ExamByCode resolves an exam code typed by the participant.
func (c *Client) ExamByCode(ctx context.Context, code string) (*model.ExamSummary, error) {
	var out struct {
		Exam model.ExamSummary `json:"exam"`
	}
	path := "/api/v1/client/exam-by-code/" + url.PathEscape(strings.TrimSpace(code))
	if err := c.do(ctx, http.MethodGet, path, authNone, nil, &out); err != nil {
		return nil, err
	}
	return &out.Exam, nil
}

// ─── Session ────────────────────────────────────────────────────────────────

// Start creates or resumes the participant's session and keeps its token.
func (c *Client) Start(ctx context.Context, rollNumber, examCode string) (*model.StartSessionResult, error) {
	var out model.StartSessionResult
	err := c.do(ctx, http.MethodPost, "/api/v1/client/start", authUser,
		model.StartSessionRequest{RollNumber: rollNumber, ExamCode: examCode}, &out)
	if err != nil {
		return nil, err
	}
	c.SetSessionToken(out.SessionToken)
	return &out, nil
}

// Content fetches the questions with the saved answers.
func (c *Client) Content(ctx context.Context) (*model.ExamContent, error) {
	var out model.ExamContent
	if err := c.do(ctx, http.MethodGet, "/api/v1/client/exam", authSession, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Save autosaves one answer. A nil selectedIdx clears it.
func (c *Client) Save(ctx context.Context, questionID uuid.UUID, selectedIdx *int) (*model.Response, error) {
	var out struct {
		Response model.Response `json:"response"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/client/save", authSession,
		model.AnswerInput{QuestionID: questionID, SelectedIdx: selectedIdx}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Response, nil
}

// Heartbeat delivers a batch of events and reports whether the session may continue.
func (c *Client) Heartbeat(ctx context.Context, events []model.ClientEvent) (*model.HeartbeatResult, error) {
	if events == nil {
		events = []model.ClientEvent{}
	}
	var out model.HeartbeatResult
	err := c.do(ctx, http.MethodPost, "/api/v1/client/heartbeat", authSession,
		model.HeartbeatRequest{Events: events}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit finalizes the session and returns the grade.
func (c *Client) Submit(ctx context.Context, responses []model.AnswerInput) (*model.SubmitResult, error) {
	var out model.SubmitResult
	err := c.do(ctx, http.MethodPost, "/api/v1/client/submit", authSession,
		model.SubmitRequest{Responses: responses}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Transport ──────────────────────────────────────────────────────────────

type authMode int

const (
	authNone authMode = iota
	authUser
	authSession
)

func (c *Client) do(ctx context.Context, method, path string, auth authMode, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set(headerRequestID, uuid.NewString())

	c.mu.RLock()
	if c.deviceID != nil {
		req.Header.Set(headerDeviceID, c.deviceID.String())
	}
	switch {
	case auth == authSession && c.sessionToken != "":
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	case auth == authUser && c.userToken != "":
		req.Header.Set("Authorization", "Bearer "+c.userToken)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var src io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		src = brotli.NewReader(resp.Body)
	}

	var env envelope
	if err := json.NewDecoder(src).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response (%d): %w", method, path, resp.StatusCode, err)
	}

	if resp.StatusCode >= 300 || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: env.Metadata.RequestID}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
