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

// ExamHandler handles exam authoring endpoints. Every route is scoped to
// exams the caller owns; admins own every exam.
type ExamHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		log:         log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/exams
// Lists the caller's exams with question and session counts.
func (h *ExamHandler) ListExams(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	exams, err := h.examService.ListOwned(c.Request.Context(), actor)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// CreateExam godoc
// POST /api/v1/exams
// Creates a new draft exam with a generated exam code.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), actor, req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Created(c, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/exams/:id
// Returns the exam with its questions, answer key included.
func (h *ExamHandler) GetExam(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	detail, err := h.examService.GetDetail(c.Request.Context(), actor, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// AddQuestions godoc
// POST /api/v1/exams/:id/questions
// Appends questions to a draft exam.
func (h *ExamHandler) AddQuestions(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req model.AddQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.examService.AddQuestions(c.Request.Context(), actor, examID, req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Created(c, res)
}

// PublishExam godoc
// PUT /api/v1/exams/:id/publish
// Moves a draft exam with at least one question to PUBLISHED.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	examID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	exam, err := h.examService.Publish(c.Request.Context(), actor, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ─── Helpers ──────────────────────────────────────────────────────────

// actorFrom reads the caller from user claims, failing the request if absent.
func actorFrom(c *gin.Context) (service.Actor, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil || claims.TokenType != service.TokenTypeUser {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return service.Actor{}, false
	}
	return claims.Actor(), true
}

// pathUUID parses a UUID path parameter, failing the request if malformed.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
