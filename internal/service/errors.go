package service

import "errors"

// Domain errors. Handlers translate them into response codes with errors.Is.
var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamNotPublished    = errors.New("exam status is not PUBLISHED")
	ErrExamNotDraft        = errors.New("exam status is not DRAFT")
	ErrNoQuestions         = errors.New("exam has no questions, cannot publish")
	ErrNotExamOwner        = errors.New("not the owner of this exam")
	ErrAlreadySubmitted    = errors.New("session already submitted")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session deadline has passed")
	ErrInvalidAnswer       = errors.New("answer does not match a question option")
	ErrDeviceNotFound      = errors.New("device not registered")
	ErrDeviceNotApproved   = errors.New("device is pending approval")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("email already registered")
	ErrUserNotFound        = errors.New("user not found")
	ErrExamRequired        = errors.New("exam id or exam code is required")
	ErrParticipantRequired = errors.New("participant id is blank")
	ErrInvalidEvent        = errors.New("event batch is invalid")
	ErrNotAdmin            = errors.New("admin role required")
	ErrDepartmentRequired  = errors.New("department is blank")
)
