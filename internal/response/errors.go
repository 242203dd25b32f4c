package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Exam definitions ──────────────────────────────────────────────
	ErrExamNotFound  ErrCode = "EXAM_NOT_FOUND"
	ErrExamEmpty     ErrCode = "EXAM_EMPTY"
	ErrExamMalformed ErrCode = "EXAM_MALFORMED"

	// ─── Attempts ──────────────────────────────────────────────────────
	ErrAttemptNotFound    ErrCode = "ATTEMPT_NOT_FOUND"
	ErrInvalidState       ErrCode = "INVALID_STATE"
	ErrSessionCompleted   ErrCode = "SESSION_COMPLETED"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswerShape ErrCode = "INVALID_ANSWER_SHAPE"
	ErrIndexOutOfRange    ErrCode = "INDEX_OUT_OF_RANGE"
	ErrMaxAttemptsReached ErrCode = "MAX_ATTEMPTS_REACHED"
	ErrPersistenceFailed  ErrCode = "PERSISTENCE_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Exam definitions ──────────────────────────────────────────────
	case ErrExamNotFound:
		return "Exam not found."
	case ErrExamEmpty:
		return "This exam has no questions."
	case ErrExamMalformed:
		return "This exam is misconfigured and cannot be taken."

	// ─── Attempts ──────────────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "Attempt not found."
	case ErrInvalidState:
		return "The attempt is not in a state that allows this action."
	case ErrSessionCompleted:
		return "The attempt has already been completed."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."
	case ErrInvalidAnswerShape:
		return "The answer does not fit the question type."
	case ErrIndexOutOfRange:
		return "Question index is out of range."
	case ErrMaxAttemptsReached:
		return "You have used all attempts for this exam."
	case ErrPersistenceFailed:
		return "The attempt was graded but could not be saved. Retry saving it."

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
