package service

import (
	"fmt"
	"sort"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// Fixed analysis policy. Category percentages at or above the strength
// threshold are strengths; below the weakness threshold they are
// weaknesses; below the urgent threshold the study recommendation turns
// high priority. Borderline categories get a course suggestion.
const (
	strengthThreshold   = 80.0
	weaknessThreshold   = 50.0
	urgentThreshold     = 30.0
	borderlineThreshold = 65.0

	// skillBlendFactor moves a stored skill level toward the attempt's
	// category percentage: new = old + (pct - old) * factor.
	skillBlendFactor = 0.3
)

// breakdown groups question results by a key and tallies correct/total.
// Pending-review answers count as not correct until resolved.
func breakdown(results []model.QuestionResult, keyOf func(*model.QuestionResult) string) map[string]model.CategoryScore {
	out := make(map[string]model.CategoryScore)
	for i := range results {
		key := keyOf(&results[i])
		if key == "" {
			key = "general"
		}
		score := out[key]
		score.Total++
		if results[i].IsCorrect != nil && *results[i].IsCorrect {
			score.Correct++
		}
		out[key] = score
	}
	for key, score := range out {
		score.Percentage = float64(score.Correct) / float64(score.Total) * 100
		out[key] = score
	}
	return out
}

func sortedCategories(cats map[string]model.CategoryScore) []string {
	names := make([]string, 0, len(cats))
	for name := range cats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func deriveStrengths(cats map[string]model.CategoryScore) []string {
	var out []string
	for _, name := range sortedCategories(cats) {
		if cats[name].Percentage >= strengthThreshold {
			out = append(out, name)
		}
	}
	return out
}

func deriveWeaknesses(cats map[string]model.CategoryScore) []string {
	var out []string
	for _, name := range sortedCategories(cats) {
		if cats[name].Percentage < weaknessThreshold {
			out = append(out, name)
		}
	}
	return out
}

// deriveRecommendations maps the category breakdown to follow-up
// suggestions. The output is deterministic: categories in sorted order,
// then the attempt-level suggestions.
func deriveRecommendations(cats map[string]model.CategoryScore, assessment *model.Assessment, passed bool) []model.Recommendation {
	var out []model.Recommendation
	for _, name := range sortedCategories(cats) {
		pct := cats[name].Percentage
		switch {
		case pct < weaknessThreshold:
			priority := model.PriorityMedium
			if pct < urgentThreshold {
				priority = model.PriorityHigh
			}
			out = append(out, model.Recommendation{
				Type:     model.RecStudyMaterial,
				Category: name,
				Reason:   fmt.Sprintf("scored %.0f%% in %s", pct, name),
				Priority: priority,
			})
		case pct < borderlineThreshold:
			out = append(out, model.Recommendation{
				Type:     model.RecCourse,
				Category: name,
				Reason:   fmt.Sprintf("scored %.0f%% in %s, a course would consolidate it", pct, name),
				Priority: model.PriorityMedium,
			})
		}
	}

	if !passed {
		out = append(out, model.Recommendation{
			Type:     model.RecPracticeAssessment,
			Category: assessment.Category,
			Reason:   fmt.Sprintf("below the %.0f%% passing score", assessment.PassingScore),
			Priority: model.PriorityHigh,
		})
		if assessment.Mode == model.ModeCertification {
			out = append(out, model.Recommendation{
				Type:     model.RecMentorship,
				Category: assessment.Category,
				Reason:   "a mentor can help prepare the next certification run",
				Priority: model.PriorityMedium,
			})
		}
	}
	return out
}

// deriveBadges awards in a fixed order so result rows compare cleanly.
func deriveBadges(percentage float64, passed bool, timeSpent, limitSeconds int, firstPass bool) []string {
	var out []string
	if percentage >= 100 {
		out = append(out, model.BadgePerfectScore)
	}
	if passed && limitSeconds > 0 && timeSpent*2 < limitSeconds {
		out = append(out, model.BadgeQuickFinish)
	}
	if passed && firstPass {
		out = append(out, model.BadgeFirstPass)
	}
	return out
}

func blendSkill(old, categoryPct float64) float64 {
	return old + (categoryPct-old)*skillBlendFactor
}
