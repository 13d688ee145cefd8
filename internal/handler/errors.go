package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
)

// errorStatus maps a service error to its HTTP status and code. Unknown
// errors are INTERNAL_ERROR.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrExamNotFound),
		errors.Is(err, service.ErrNotExamOwner),
		errors.Is(err, service.ErrUserNotFound):
		// Foreign exams look missing so ids cannot be probed.
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrExamNotPublished):
		return http.StatusBadRequest, response.ErrExamNotPublished
	case errors.Is(err, service.ErrExamNotDraft):
		return http.StatusBadRequest, response.ErrExamNotDraft
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusBadRequest, response.ErrNoQuestions
	case errors.Is(err, service.ErrExamRequired):
		return http.StatusBadRequest, response.ErrExamRequired
	case errors.Is(err, service.ErrParticipantRequired):
		return http.StatusBadRequest, response.ErrRollRequired
	case errors.Is(err, service.ErrNotAdmin):
		return http.StatusForbidden, response.ErrAdminAccessOnly
	case errors.Is(err, service.ErrInvalidEvent),
		errors.Is(err, service.ErrDepartmentRequired):
		return http.StatusBadRequest, response.ErrValidation
	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest, response.ErrInvalidAnswer
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusConflict, response.ErrSessionExpired
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusUnauthorized, response.ErrSessionInvalid
	case errors.Is(err, service.ErrDeviceNotFound):
		return http.StatusUnauthorized, response.ErrDeviceUnknown
	case errors.Is(err, service.ErrDeviceNotApproved):
		return http.StatusForbidden, response.ErrDeviceNotApproved
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, response.ErrEmailTaken
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the mapped error response. Only unexpected errors are logged.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
