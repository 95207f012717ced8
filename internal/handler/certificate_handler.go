package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/datacomunidad/assess-backend/internal/response"
	"github.com/datacomunidad/assess-backend/internal/service"
)

// CertificateHandler serves public certificate verification. No auth:
// anyone holding a code (e.g. a recruiter reading a CV) may check it.
type CertificateHandler struct {
	certificateService *service.CertificateService
}

// NewCertificateHandler creates a new CertificateHandler.
func NewCertificateHandler(certificateService *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

// Verify godoc
// GET /api/v1/public/certificates/:code
func (h *CertificateHandler) Verify(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	verification, err := h.certificateService.Verify(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verification": verification})
}
