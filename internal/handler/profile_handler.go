package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/datacomunidad/assess-backend/internal/middleware"
	"github.com/datacomunidad/assess-backend/internal/response"
	"github.com/datacomunidad/assess-backend/internal/service"
)

// ProfileHandler serves the member's own history: past attempts, earned
// certificates and tracked skill levels.
type ProfileHandler struct {
	attemptService     *service.AttemptService
	certificateService *service.CertificateService
	skillService       *service.SkillService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(
	attemptService *service.AttemptService,
	certificateService *service.CertificateService,
	skillService *service.SkillService,
) *ProfileHandler {
	return &ProfileHandler{
		attemptService:     attemptService,
		certificateService: certificateService,
		skillService:       skillService,
	}
}

// Attempts godoc
// GET /api/v1/me/attempts?page=1&per_page=20
func (h *ProfileHandler) Attempts(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	attempts, pagination, err := h.attemptService.ListByUser(c.Request.Context(), userID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts}, pagination)
}

// Certificates godoc
// GET /api/v1/me/certificates
func (h *ProfileHandler) Certificates(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	certificates, err := h.certificateService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"certificates": certificates})
}

// Skills godoc
// GET /api/v1/me/skills
func (h *ProfileHandler) Skills(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	skills, err := h.skillService.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"skills": skills})
}
