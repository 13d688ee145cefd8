package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/cache"
	"github.com/stemsi/labexam-backend/internal/metrics"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
)

const examCodeAttempts = 10

// ExamService handles exam authoring and the participant-facing content cache.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	content   cache.ContentCache
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(stores Stores, content cache.ContentCache, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     stores.Exams,
		questions: stores.Questions,
		content:   content,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// Create inserts a new DRAFT exam with a freshly generated exam code.
func (s *ExamService) Create(ctx context.Context, actor Actor, req model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		DurationMinutes: req.DurationMinutes,
		ProfessorID:     actor.UserID,
	}

	for attempt := 0; attempt < examCodeAttempts; attempt++ {
		code, err := generateExamCode()
		if err != nil {
			return nil, err
		}
		taken, err := s.exams.CodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check exam code: %w", err)
		}
		if taken {
			continue
		}

		exam.ExamCode = code
		err = s.exams.Create(ctx, exam)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create exam: %w", err)
		}

		s.log.Info().Str("exam_id", exam.ID.String()).Str("exam_code", code).Msg("Exam created")
		return exam, nil
	}
	return nil, errors.New("could not generate a unique exam code")
}

// generateExamCode draws from a 32-symbol alphabet, so byte%32 is unbiased.
func generateExamCode() (string, error) {
	buf := make([]byte, model.ExamCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = model.ExamCodeAlphabet[int(b)%len(model.ExamCodeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeExamCode upper-cases a participant-typed exam code.
func NormalizeExamCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ListOwned lists the actor's exams with question and session counts.
func (s *ExamService) ListOwned(ctx context.Context, actor Actor) ([]model.Exam, error) {
	return s.exams.ListByProfessor(ctx, actor.UserID)
}

// GetOwned loads an exam the actor manages. Exams owned by someone else look
// missing.
func (s *ExamService) GetOwned(ctx context.Context, actor Actor, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(exam) {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// GetDetail returns an owned exam with its questions, answer key included.
func (s *ExamService) GetDetail(ctx context.Context, actor Actor, examID uuid.UUID) (*model.ExamDetail, error) {
	exam, err := s.GetOwned(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return &model.ExamDetail{Exam: *exam, Questions: questions}, nil
}

// AddQuestions appends questions to a DRAFT exam. Positions continue densely
// after the current last question.
func (s *ExamService) AddQuestions(ctx context.Context, actor Actor, examID uuid.UUID, req model.AddQuestionsRequest) (*model.AddQuestionsResult, error) {
	exam, err := s.GetOwned(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	questions := make([]model.Question, len(req.Questions))
	for i, in := range req.Questions {
		q := model.Question{Text: strings.TrimSpace(in.Text), Options: in.Options}
		if in.CorrectIdx != nil {
			q.CorrectIdx = *in.CorrectIdx
		}
		if len(q.Options) < model.MinOptions || len(q.Options) > model.MaxOptions || !q.ValidOption(q.CorrectIdx) {
			return nil, fmt.Errorf("question %d: %w", i+1, ErrInvalidAnswer)
		}
		questions[i] = q
	}

	total, err := s.questions.Append(ctx, examID, questions)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrExamNotDraft
		}
		return nil, fmt.Errorf("append questions: %w", err)
	}
	return &model.AddQuestionsResult{Added: len(questions), Total: total}, nil
}

// Publish moves a DRAFT exam with at least one question to PUBLISHED and
// warms the content cache.
func (s *ExamService) Publish(ctx context.Context, actor Actor, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.GetOwned(ctx, actor, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}
	if exam.QuestionCount == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.exams.Publish(ctx, examID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrExamNotDraft
		}
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	exam.Status = model.ExamStatusPublished

	if _, err := s.WarmExamCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to warm exam cache after publish")
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return exam, nil
}

// ListPublished returns the exams open for attempts, as shown to lab clients.
func (s *ExamService) ListPublished(ctx context.Context) ([]model.ExamSummary, error) {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ExamSummary, len(exams))
	for i := range exams {
		out[i] = exams[i].Summary()
	}
	return out, nil
}

// GetPublishedByCode resolves a participant-typed exam code.
func (s *ExamService) GetPublishedByCode(ctx context.Context, code string) (*model.ExamSummary, error) {
	exam, err := s.exams.GetByCode(ctx, NormalizeExamCode(code))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, err
	}
	if !exam.IsPublished() {
		return nil, ErrExamNotPublished
	}
	sum := exam.Summary()
	return &sum, nil
}

// Payload returns the participant-facing content of a published exam, from the
// cache when warm. A miss rebuilds the entry from the store.
func (s *ExamService) Payload(ctx context.Context, exam *model.Exam) (*model.ExamPayload, error) {
	payload, err := s.content.Get(ctx, exam.ID)
	switch {
	case err == nil:
		metrics.ContentCacheLookups.WithLabelValues("hit").Inc()
		return payload, nil
	case errors.Is(err, cache.ErrMiss):
		metrics.ContentCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.ContentCacheLookups.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Content cache read failed, falling back to store")
	}
	return s.WarmExamCache(ctx, exam)
}

// WarmExamCache builds the participant payload from the store and caches it
// for published exams.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) (*model.ExamPayload, error) {
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i := range questions {
		studentQuestions[i] = questions[i].ForStudent()
	}
	payload := &model.ExamPayload{
		ExamID:    exam.ID,
		ExamCode:  exam.ExamCode,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Questions: studentQuestions,
	}

	if exam.IsPublished() {
		if err := s.content.Set(ctx, payload); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to cache exam payload")
		} else {
			s.log.Debug().Str("exam_id", exam.ID.String()).Int("questions", len(questions)).Msg("Cache warmed")
		}
	}
	return payload, nil
}

// PrewarmAllCaches loads all published exams into the cache on startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if _, err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Prewarming complete")
	return nil
}

func (s *ExamService) getExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}
