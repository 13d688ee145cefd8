package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrSessionInvalid     ErrCode = "SESSION_INVALID"
	ErrDeviceUnknown      ErrCode = "DEVICE_UNKNOWN"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"
	ErrDeviceNotApproved ErrCode = "DEVICE_NOT_APPROVED"
	ErrSessionAccessOnly ErrCode = "SESSION_TOKEN_REQUIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"
	ErrExamRequired   ErrCode = "EXAM_REQUIRED"
	ErrRollRequired   ErrCode = "ROLL_NUMBER_REQUIRED"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound   ErrCode = "NOT_FOUND"
	ErrConflict   ErrCode = "CONFLICT"
	ErrEmailTaken ErrCode = "EMAIL_TAKEN"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotPublished ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrExamNotDraft     ErrCode = "EXAM_NOT_DRAFT"
	ErrAlreadySubmitted ErrCode = "ALREADY_SUBMITTED"
	ErrSessionExpired   ErrCode = "SESSION_EXPIRED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect email or password."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or has expired."
	case ErrSessionInvalid:
		return "The exam session is invalid. Start the exam again."
	case ErrDeviceUnknown:
		return "This workstation is not registered."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStaffAccessOnly:
		return "This resource is restricted to professors and administrators."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrDeviceNotApproved:
		return "This workstation is waiting for administrator approval."
	case ErrSessionAccessOnly:
		return "This resource requires an exam session token."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "The answer does not match a question option of this exam."
	case ErrExamRequired:
		return "Either exam_id or exam_code is required."
	case ErrRollRequired:
		return "A roll number is required."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrEmailTaken:
		return "This email is already registered."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotPublished:
		return "This exam is not published."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrExamNotDraft:
		return "This exam is no longer a draft."
	case ErrAlreadySubmitted:
		return "This exam has already been submitted."
	case ErrSessionExpired:
		return "Time is up for this exam."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
