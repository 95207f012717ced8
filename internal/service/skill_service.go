package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
)

// SkillService reads member skill levels. Writes happen inside the
// scoring pipeline only.
type SkillService struct {
	skillRepo *repository.SkillRepository
	log       zerolog.Logger
}

// NewSkillService creates a new SkillService.
func NewSkillService(skillRepo *repository.SkillRepository, log zerolog.Logger) *SkillService {
	return &SkillService{
		skillRepo: skillRepo,
		log:       log.With().Str("component", "skill_service").Logger(),
	}
}

// ListByUser returns the member's skill levels by category.
func (s *SkillService) ListByUser(ctx context.Context, userID string) ([]model.UserSkillLevel, error) {
	skills, err := s.skillRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if skills == nil {
		skills = []model.UserSkillLevel{}
	}
	return skills, nil
}
