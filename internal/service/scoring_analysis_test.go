package service

import (
	"math"
	"testing"

	"github.com/datacomunidad/assess-backend/internal/model"
)

func truePtr() *bool  { v := true; return &v }
func falsePtr() *bool { v := false; return &v }

func qr(category string, difficulty model.Difficulty, correct *bool) model.QuestionResult {
	return model.QuestionResult{Category: category, Difficulty: difficulty, IsCorrect: correct}
}

func TestBreakdown(t *testing.T) {
	results := []model.QuestionResult{
		qr("statistics", model.DifficultyBeginner, truePtr()),
		qr("statistics", model.DifficultyBeginner, falsePtr()),
		qr("statistics", model.DifficultyIntermediate, truePtr()),
		qr("python", model.DifficultyBeginner, falsePtr()),
		// Pending review: no verdict yet, counts as not correct.
		qr("python", model.DifficultyAdvanced, nil),
		qr("", model.DifficultyBeginner, truePtr()),
	}

	cats := breakdown(results, func(r *model.QuestionResult) string { return r.Category })

	stats := cats["statistics"]
	if stats.Correct != 2 || stats.Total != 3 {
		t.Fatalf("statistics: expected 2/3, got %d/%d", stats.Correct, stats.Total)
	}
	if math.Abs(stats.Percentage-66.666) > 0.01 {
		t.Fatalf("statistics: expected ~66.67%%, got %v", stats.Percentage)
	}
	python := cats["python"]
	if python.Correct != 0 || python.Total != 2 {
		t.Fatalf("python: expected 0/2, got %d/%d", python.Correct, python.Total)
	}
	general := cats["general"]
	if general.Correct != 1 || general.Total != 1 {
		t.Fatalf("general bucket: expected 1/1, got %d/%d", general.Correct, general.Total)
	}
}

func TestDeriveStrengthsAndWeaknesses(t *testing.T) {
	cats := map[string]model.CategoryScore{
		"sql":           {Percentage: 100},
		"statistics":    {Percentage: 80},
		"python":        {Percentage: 79.9},
		"visualization": {Percentage: 50},
		"ml":            {Percentage: 49.9},
		"ethics":        {Percentage: 0},
	}

	strengths := deriveStrengths(cats)
	if len(strengths) != 2 || strengths[0] != "sql" || strengths[1] != "statistics" {
		t.Fatalf("expected [sql statistics], got %v", strengths)
	}

	weaknesses := deriveWeaknesses(cats)
	if len(weaknesses) != 2 || weaknesses[0] != "ethics" || weaknesses[1] != "ml" {
		t.Fatalf("expected [ethics ml], got %v", weaknesses)
	}
}

func TestDeriveRecommendations(t *testing.T) {
	assessment := &model.Assessment{
		Category:     "data-science",
		Mode:         model.ModeCertification,
		PassingScore: 70,
	}
	cats := map[string]model.CategoryScore{
		"statistics": {Percentage: 25},
		"python":     {Percentage: 45},
		"sql":        {Percentage: 60},
		"ml":         {Percentage: 90},
	}

	recs := deriveRecommendations(cats, assessment, false)

	// ml at 90% earns nothing; the rest follow sorted category order,
	// then the attempt-level suggestions.
	want := []struct {
		typ      model.RecommendationType
		category string
		priority model.RecommendationPriority
	}{
		{model.RecStudyMaterial, "python", model.PriorityMedium},
		{model.RecCourse, "sql", model.PriorityMedium},
		{model.RecStudyMaterial, "statistics", model.PriorityHigh},
		{model.RecPracticeAssessment, "data-science", model.PriorityHigh},
		{model.RecMentorship, "data-science", model.PriorityMedium},
	}

	if len(recs) != len(want) {
		t.Fatalf("expected %d recommendations, got %d: %+v", len(want), len(recs), recs)
	}
	for i, w := range want {
		if recs[i].Type != w.typ || recs[i].Category != w.category || recs[i].Priority != w.priority {
			t.Fatalf("rec %d: expected %s/%s/%s, got %s/%s/%s",
				i, w.typ, w.category, w.priority, recs[i].Type, recs[i].Category, recs[i].Priority)
		}
	}

	// A passing practice run over the same categories drops the
	// attempt-level suggestions.
	recs = deriveRecommendations(cats, &model.Assessment{Category: "data-science", Mode: model.ModePractice, PassingScore: 70}, true)
	for _, r := range recs {
		if r.Type == model.RecPracticeAssessment || r.Type == model.RecMentorship {
			t.Fatalf("unexpected attempt-level recommendation on a pass: %+v", r)
		}
	}
}

func TestDeriveBadges(t *testing.T) {
	tests := []struct {
		name         string
		percentage   float64
		passed       bool
		timeSpent    int
		limitSeconds int
		firstPass    bool
		want         []string
	}{
		{
			name:       "perfect fast first pass",
			percentage: 100, passed: true, timeSpent: 600, limitSeconds: 3600, firstPass: true,
			want: []string{model.BadgePerfectScore, model.BadgeQuickFinish, model.BadgeFirstPass},
		},
		{
			name:       "pass at half the limit is not quick",
			percentage: 85, passed: true, timeSpent: 1800, limitSeconds: 3600, firstPass: false,
			want: nil,
		},
		{
			name:       "just under half the limit",
			percentage: 85, passed: true, timeSpent: 1799, limitSeconds: 3600, firstPass: false,
			want: []string{model.BadgeQuickFinish},
		},
		{
			name:       "fast fail earns nothing",
			percentage: 40, passed: false, timeSpent: 300, limitSeconds: 3600, firstPass: false,
			want: nil,
		},
		{
			name:       "repeat pass earns no first pass",
			percentage: 90, passed: true, timeSpent: 3000, limitSeconds: 3600, firstPass: false,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveBadges(tt.percentage, tt.passed, tt.timeSpent, tt.limitSeconds, tt.firstPass)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestBlendSkill(t *testing.T) {
	tests := []struct {
		name string
		old  float64
		pct  float64
		want float64
	}{
		{"strong run raises", 70, 90, 76},
		{"weak run lowers", 70, 40, 61},
		{"equal holds", 50, 50, 50},
		{"from zero", 0, 80, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blendSkill(tt.old, tt.pct)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
