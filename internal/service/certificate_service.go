package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/metrics"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
)

// Domain Errors
var (
	ErrNotEligible       = errors.New("attempt is not eligible for a certificate")
	ErrCertificateFailed = errors.New("certificate issuance failed")
)

// codeEncoding spells verification codes without padding; base32 keeps
// them caseless for support staff reading codes over the phone.
var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CertificateService issues and verifies certificates. Issuance is
// idempotent per attempt: retries and concurrent submissions converge
// on the first stored row.
type CertificateService struct {
	certRepo *repository.CertificateRepository
	baseURL  string
	log      zerolog.Logger
}

// NewCertificateService creates a new CertificateService.
func NewCertificateService(certRepo *repository.CertificateRepository, baseURL string, log zerolog.Logger) *CertificateService {
	return &CertificateService{
		certRepo: certRepo,
		baseURL:  baseURL,
		log:      log.With().Str("component", "certificate_service").Logger(),
	}
}

// Issue creates the certificate for a passed certification attempt, or
// returns the one already stored for it.
func (s *CertificateService) Issue(ctx context.Context, attempt *model.Attempt, assessment *model.Assessment, result *model.AssessmentResult) (*model.Certificate, error) {
	if assessment.Mode != model.ModeCertification || !result.Passed {
		return nil, ErrNotEligible
	}

	code, err := newVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	now := time.Now()
	cert := &model.Certificate{
		ID:               uuid.New(),
		UserID:           attempt.UserID,
		AssessmentID:     assessment.ID,
		AttemptID:        attempt.ID,
		Title:            assessment.Title,
		Score:            result.Percentage,
		Level:            assessment.Difficulty,
		Skills:           assessment.RelatedSkills,
		VerificationCode: code,
		IssuedAt:         now,
	}
	if assessment.CertValidityMonths > 0 {
		expires := now.AddDate(0, assessment.CertValidityMonths, 0)
		cert.ExpiresAt = &expires
	}

	stored, err := s.certRepo.Create(ctx, cert)
	if err != nil {
		return nil, fmt.Errorf("store certificate: %w", err)
	}
	if stored.ID == cert.ID {
		metrics.CertificatesIssued.Inc()
		s.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Str("code", stored.VerificationCode).
			Msg("Certificate issued")
	}

	s.decorate(stored)
	return stored, nil
}

// GetByAttempt returns the certificate stored for an attempt.
func (s *CertificateService) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Certificate, error) {
	cert, err := s.certRepo.GetByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	s.decorate(cert)
	return cert, nil
}

// ListByUser returns a member's certificates, newest first.
func (s *CertificateService) ListByUser(ctx context.Context, userID string) ([]model.Certificate, error) {
	certs, err := s.certRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range certs {
		s.decorate(&certs[i])
	}
	if certs == nil {
		certs = []model.Certificate{}
	}
	return certs, nil
}

// Verify resolves a public verification code. Unknown codes surface as
// pgx.ErrNoRows for the handler to translate; lapsed certificates are
// reported as expired, never hidden.
func (s *CertificateService) Verify(ctx context.Context, code string) (*model.CertificateVerification, error) {
	cert, err := s.certRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	status := model.CertStatusValid
	if cert.Expired(time.Now()) {
		status = model.CertStatusExpired
	}
	return &model.CertificateVerification{
		Status:    status,
		Title:     cert.Title,
		UserID:    cert.UserID,
		Level:     cert.Level,
		Skills:    cert.Skills,
		Score:     cert.Score,
		IssuedAt:  cert.IssuedAt,
		ExpiresAt: cert.ExpiresAt,
	}, nil
}

func (s *CertificateService) decorate(cert *model.Certificate) {
	cert.VerificationURL = fmt.Sprintf("%s/%s", s.baseURL, cert.VerificationCode)
}

// newVerificationCode builds a DC-XXXX-XXXX-XXXX code from 8 random
// bytes. Uniqueness is enforced by the database constraint.
func newVerificationCode() (string, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	enc := codeEncoding.EncodeToString(raw)[:12]
	return fmt.Sprintf("DC-%s-%s-%s", enc[0:4], enc[4:8], enc[8:12]), nil
}
