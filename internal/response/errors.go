package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation           ErrCode = "VALIDATION_ERROR"
	ErrInvalidID            ErrCode = "INVALID_ID"
	ErrInvalidPayload       ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswerPayload ErrCode = "INVALID_ANSWER_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Assessment-specific ───────────────────────────────────────────
	ErrAssessmentNotPublished ErrCode = "ASSESSMENT_NOT_PUBLISHED"
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrPrereqNotMet           ErrCode = "PREREQUISITES_NOT_MET"
	ErrAttemptFinished        ErrCode = "ATTEMPT_FINISHED"
	ErrAttemptPaused          ErrCode = "ATTEMPT_PAUSED"
	ErrAttemptNotPausable     ErrCode = "ATTEMPT_NOT_PAUSABLE"
	ErrAttemptNotPaused       ErrCode = "ATTEMPT_NOT_PAUSED"
	ErrQuestionIndexRange     ErrCode = "QUESTION_INDEX_OUT_OF_RANGE"
	ErrResultNotReady         ErrCode = "RESULT_NOT_READY"
	ErrScoringFailed          ErrCode = "SCORING_FAILED"
	ErrCertificateNotEligible ErrCode = "CERTIFICATE_NOT_ELIGIBLE"
	ErrCertificateFailed      ErrCode = "CERTIFICATE_FAILED"

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
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."
	case ErrInvalidAnswerPayload:
		return "The answer payload does not match the question type."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."
	case ErrConflict:
		return "The resource already exists."

	// ─── Assessment-specific ───────────────────────────────────────────
	case ErrAssessmentNotPublished:
		return "This assessment is not currently available."
	case ErrNoQuestions:
		return "This assessment has no questions."
	case ErrPrereqNotMet:
		return "You have not passed the prerequisite assessments."
	case ErrAttemptFinished:
		return "This attempt has already finished."
	case ErrAttemptPaused:
		return "This attempt is paused. Resume it to continue."
	case ErrAttemptNotPausable:
		return "Only practice attempts in progress can be paused."
	case ErrAttemptNotPaused:
		return "This attempt is not paused."
	case ErrQuestionIndexRange:
		return "The question index is out of range."
	case ErrResultNotReady:
		return "The attempt has not been scored yet."
	case ErrScoringFailed:
		return "Scoring failed. Your answers are saved; please retry the submission."
	case ErrCertificateNotEligible:
		return "This attempt does not qualify for a certificate."
	case ErrCertificateFailed:
		return "Certificate issuance failed. Your result is unaffected; please retry."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
