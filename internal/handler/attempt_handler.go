package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datacomunidad/assess-backend/internal/engine"
	"github.com/datacomunidad/assess-backend/internal/grading"
	"github.com/datacomunidad/assess-backend/internal/middleware"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/response"
	"github.com/datacomunidad/assess-backend/internal/service"
	"github.com/datacomunidad/assess-backend/internal/validator"
)

// AttemptHandler drives the member-facing attempt lifecycle.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// Start godoc
// POST /api/v1/assessments/:id/attempts
// Starts an attempt, or rejoins the member's live one on the assessment.
func (h *AttemptHandler) Start(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.Start(c.Request.Context(), userID, assessmentID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, state)
}

// Active godoc
// GET /api/v1/attempts/active
// Returns the member's live attempt, or null when none exists. The
// frontend uses this to offer "continue where you left off".
func (h *AttemptHandler) Active(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attempt, err := h.attemptService.ActiveAttempt(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Success(c, http.StatusOK, gin.H{"attempt": nil})
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// State godoc
// GET /api/v1/attempts/:id/state
// Returns the resumable view: attempt, questions, saved answers. Covers
// the page reload case.
func (h *AttemptHandler) State(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), userID, attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Payload godoc
// GET /api/v1/attempts/:id/payload
// Returns the cached question bundle for a live attempt (answer data
// stripped), bypassing PostgreSQL.
func (h *AttemptHandler) Payload(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	payload, err := h.attemptService.Payload(c.Request.Context(), userID, attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// RecordAnswer godoc
// PUT /api/v1/attempts/:id/answers/:index
// Saves the answer for the question at a presentation index. The echo
// carries no verdict; grading stays server-side until submission.
func (h *AttemptHandler) RecordAnswer(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"index": "must be an integer"})
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ans, err := h.attemptService.RecordAnswer(c.Request.Context(), userID, attemptID, index, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	view := model.AnswerView{
		QuestionID:  ans.QuestionID,
		Payload:     ans.Payload,
		TimeSpent:   ans.TimeSpent,
		SubmittedAt: ans.SubmittedAt,
	}
	response.Success(c, http.StatusOK, gin.H{
		"answer":       view,
		"needs_review": ans.NeedsReview,
	})
}

// Advance godoc
// POST /api/v1/attempts/:id/advance
// Moves the question pointer one step and returns the new index.
func (h *AttemptHandler) Advance(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	var req model.AdvanceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	index, err := h.attemptService.Advance(c.Request.Context(), userID, attemptID, req.Direction)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"current_index": index})
}

// Flag godoc
// POST /api/v1/attempts/:id/flag
// Toggles the review flag on a question.
func (h *AttemptHandler) Flag(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	var req model.FlagRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	flagged, err := h.attemptService.ToggleFlag(c.Request.Context(), userID, attemptID, req.QuestionIndex)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"flagged": flagged})
}

// Pause godoc
// POST /api/v1/attempts/:id/pause
// Freezes the countdown. Practice mode only.
func (h *AttemptHandler) Pause(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	if err := h.attemptService.Pause(c.Request.Context(), userID, attemptID); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "paused"})
}

// Resume godoc
// POST /api/v1/attempts/:id/resume
// Restarts the countdown from the frozen remainder and returns the
// refreshed state.
func (h *AttemptHandler) Resume(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	if err := h.attemptService.Resume(c.Request.Context(), userID, attemptID); err != nil {
		h.fail(c, err)
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), userID, attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// Submit godoc
// POST /api/v1/attempts/:id/submit
// Finishes the attempt and returns the scored result. Submitting twice
// returns the same result.
func (h *AttemptHandler) Submit(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), userID, attemptID)
	if err != nil {
		if errors.Is(err, service.ErrNotYourAttempt) ||
			errors.Is(err, service.ErrScoringInProgress) ||
			errors.Is(err, pgx.ErrNoRows) {
			h.fail(c, err)
			return
		}
		// Answers are durable; the client may retry or let the sweeper
		// finish the job.
		response.Fail(c, http.StatusInternalServerError, response.ErrScoringFailed)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Exit godoc
// POST /api/v1/attempts/:id/exit
// Detaches from the attempt without submitting. The countdown keeps
// running server-side for non-paused attempts.
func (h *AttemptHandler) Exit(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	if err := h.attemptService.Exit(c.Request.Context(), userID, attemptID); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "exited"})
}

// Result godoc
// GET /api/v1/attempts/:id/result
// Returns the stored result for a finished attempt.
func (h *AttemptHandler) Result(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), userID, attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Certificate godoc
// POST /api/v1/attempts/:id/certificate
// Retries certificate issuance after a failed mint. Idempotent.
func (h *AttemptHandler) Certificate(c *gin.Context) {
	userID, attemptID, ok := h.identify(c)
	if !ok {
		return
	}

	cert, err := h.attemptService.RetryCertificate(c.Request.Context(), userID, attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"certificate": cert})
}

// identify extracts the member id and attempt id shared by every
// attempt-scoped endpoint, writing the error response itself.
func (h *AttemptHandler) identify(c *gin.Context) (string, uuid.UUID, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", uuid.Nil, false
	}

	return userID, id, true
}

// fail maps domain errors onto response codes.
func (h *AttemptHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotYourAttempt):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrAssessmentNotPublished):
		response.Fail(c, http.StatusNotFound, response.ErrAssessmentNotPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	case errors.Is(err, service.ErrPrerequisitesNotMet):
		response.Fail(c, http.StatusForbidden, response.ErrPrereqNotMet)
	case errors.Is(err, engine.ErrAttemptFinished):
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
	case errors.Is(err, engine.ErrAttemptPaused):
		response.Fail(c, http.StatusConflict, response.ErrAttemptPaused)
	case errors.Is(err, engine.ErrNotPausable):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotPausable)
	case errors.Is(err, engine.ErrNotPaused):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotPaused)
	case errors.Is(err, engine.ErrIndexOutOfRange):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionIndexRange)
	case errors.Is(err, grading.ErrPayloadMismatch):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidAnswerPayload)
	case errors.Is(err, service.ErrScoringInProgress):
		response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
	case errors.Is(err, service.ErrScoringFailed):
		response.Fail(c, http.StatusBadGateway, response.ErrScoringFailed)
	case errors.Is(err, service.ErrNotEligible):
		response.Fail(c, http.StatusConflict, response.ErrCertificateNotEligible)
	case errors.Is(err, service.ErrCertificateFailed):
		response.Fail(c, http.StatusBadGateway, response.ErrCertificateFailed)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
