package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/response"
	"github.com/datacomunidad/assess-backend/internal/service"
	"github.com/datacomunidad/assess-backend/internal/validator"
)

// AssessmentHandler serves the published catalog.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(assessmentService *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessmentService: assessmentService}
}

// List godoc
// GET /api/v1/assessments
// Returns published assessments with optional category, difficulty and
// mode filters.
func (h *AssessmentHandler) List(c *gin.Context) {
	var q model.ListAssessmentsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	items, pagination, err := h.assessmentService.List(c.Request.Context(), q)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"assessments": items}, pagination)
}

// Get godoc
// GET /api/v1/assessments/:id
// Returns one published assessment. The path segment accepts either the
// uuid or the slug.
func (h *AssessmentHandler) Get(c *gin.Context) {
	param := c.Param("id")

	var (
		assessment *model.Assessment
		err        error
	)
	if id, parseErr := uuid.Parse(param); parseErr == nil {
		assessment, err = h.assessmentService.GetByID(c.Request.Context(), id)
	} else {
		assessment, err = h.assessmentService.GetBySlug(c.Request.Context(), param)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// Drafts stay invisible to the catalog.
	if !assessment.Published {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": assessment})
}
