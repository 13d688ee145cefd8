package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/middleware"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
	"github.com/stemsi/labexam-backend/internal/validator"
)

// ClientHandler serves the lab workstation: device registration, exam
// discovery and the session lifecycle.
type ClientHandler struct {
	sessionService *service.SessionService
	examService    *service.ExamService
	deviceService  *service.DeviceService
	log            zerolog.Logger
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(
	sessionService *service.SessionService,
	examService *service.ExamService,
	deviceService *service.DeviceService,
	log zerolog.Logger,
) *ClientHandler {
	return &ClientHandler{
		sessionService: sessionService,
		examService:    examService,
		deviceService:  deviceService,
		log:            log.With().Str("component", "client_handler").Logger(),
	}
}

// RegisterDevice godoc
// POST /api/v1/client/register
// Registers a workstation by hostname. Idempotent; returns the approval status.
func (h *ClientHandler) RegisterDevice(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.deviceService.Register(c.Request.Context(), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	response.Success(c, status, res)
}

// ListExams godoc
// GET /api/v1/client/exams
// Lists published exams. Approved devices only.
func (h *ClientHandler) ListExams(c *gin.Context) {
	exams, err := h.examService.ListPublished(c.Request.Context())
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// ExamByCode godoc
// GET /api/v1/client/exam-by-code/:code
// Resolves a participant-typed exam code (case-insensitive).
func (h *ClientHandler) ExamByCode(c *gin.Context) {
	code := c.Param("code")
	if !model.IsExamCode(code) {
		c.Header("Cache-Control", "no-store")
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	exam, err := h.examService.GetPublishedByCode(c.Request.Context(), code)
	if err != nil {
		// Misses must not outlive a publish.
		c.Header("Cache-Control", "no-store")
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Start godoc
// POST /api/v1/client/start
// Creates the participant's session or resumes it, returning the session token.
func (h *ClientHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	in := service.StartInput{
		ExamCode:      req.ExamCode,
		ParticipantID: req.RollNumber,
		DeviceID:      middleware.DeviceID(c),
	}
	if req.ExamID != "" {
		id, err := uuid.Parse(req.ExamID)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		in.ExamID = &id
	}
	if claims := middleware.GetClaims(c); claims != nil {
		uid := claims.UserID
		in.UserID = &uid
	}

	res, err := h.sessionService.Start(c.Request.Context(), in)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Resuming {
		status = http.StatusOK
	}
	response.Success(c, status, res)
}

// Content godoc
// GET /api/v1/client/exam
// Returns the ordered questions with the participant's saved answers.
func (h *ClientHandler) Content(c *gin.Context) {
	content, err := h.sessionService.Content(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, content)
}

// Save godoc
// POST /api/v1/client/save
// Upserts one answer; a null selected_idx clears it.
func (h *ClientHandler) Save(c *gin.Context) {
	var req model.AnswerInput
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	saved, err := h.sessionService.SaveResponse(c.Request.Context(), middleware.SessionID(c), req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"response": saved})
}

// Heartbeat godoc
// POST /api/v1/client/heartbeat
// Stores the client's event batch and reports whether the attempt may continue.
func (h *ClientHandler) Heartbeat(c *gin.Context) {
	var req model.HeartbeatRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.Heartbeat(c.Request.Context(), middleware.SessionID(c), req.Events)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Submit godoc
// POST /api/v1/client/submit
// Finalizes and grades the session. Repeated submits replay the stored grade.
func (h *ClientHandler) Submit(c *gin.Context) {
	var req model.SubmitRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessionService.Submit(c.Request.Context(), middleware.SessionID(c), req.Responses)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}
