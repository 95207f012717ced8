package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/database"
	"github.com/datacomunidad/assess-backend/internal/logger"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
)

// seedSet is one assessment plus its question bank. Prerequisites are
// declared by slug and resolved after the referenced set is created.
type seedSet struct {
	assessment  model.Assessment
	prereqSlugs []string
	questions   []model.Question
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	assessmentRepo := repository.NewAssessmentRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	fmt.Println("=== Seeding Assessment Catalog ===")

	created := map[string]uuid.UUID{}
	for _, seed := range catalog() {
		existing, err := assessmentRepo.GetBySlug(ctx, seed.assessment.Slug)
		if err == nil {
			fmt.Printf("Skipping %s (already seeded)\n", seed.assessment.Slug)
			created[seed.assessment.Slug] = existing.ID
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Fatal().Err(err).Msg("Failed to check existing assessment")
		}

		ids := make([]uuid.UUID, 0, len(seed.questions))
		for i := range seed.questions {
			q := &seed.questions[i]
			q.ID = uuid.New()
			if err := questionRepo.Create(ctx, q); err != nil {
				log.Fatal().Err(err).Str("prompt", q.Prompt).Msg("Failed to create question")
			}
			ids = append(ids, q.ID)
		}

		a := seed.assessment
		a.QuestionIDs = ids
		a.QuestionCount = len(ids)
		a.Published = true
		for _, slug := range seed.prereqSlugs {
			prereqID, ok := created[slug]
			if !ok {
				log.Fatal().Str("slug", slug).Msg("Prerequisite must be seeded first")
			}
			a.PrerequisiteIDs = append(a.PrerequisiteIDs, prereqID)
		}

		if err := assessmentRepo.Create(ctx, &a); err != nil {
			log.Fatal().Err(err).Str("slug", a.Slug).Msg("Failed to create assessment")
		}
		created[a.Slug] = a.ID
		fmt.Printf("Seeded %s with %d questions\n", a.Slug, len(ids))
	}

	fmt.Printf("\nSeed completed! Catalog holds %d assessments.\n", len(created))
}

func catalog() []seedSet {
	return []seedSet{
		{
			assessment: model.Assessment{
				Slug:             "python-data-analysis-basics",
				Title:            "Python for Data Analysis Basics",
				Description:      "Core pandas and NumPy skills: loading data, cleaning it, and asking it simple questions.",
				Category:         "python",
				Difficulty:       model.DifficultyBeginner,
				Mode:             model.ModePractice,
				TimeLimitMinutes: 20,
				PassingScore:     60,
				ShuffleQuestions: true,
				AllowReview:      true,
				RelatedSkills:    []string{"pandas", "numpy", "data-cleaning"},
			},
			questions: []model.Question{
				choice("python", model.DifficultyBeginner, 10,
					"Which pandas method returns the first rows of a DataFrame?",
					"head()", "tail()", "first()", "top()"),
				choice("python", model.DifficultyBeginner, 10,
					"Which library is the de facto standard for numerical arrays in Python?",
					"NumPy", "collections", "itertools", "statistics"),
				truefalse("python", model.DifficultyBeginner, 10,
					"A pandas Series can hold values of mixed types.", true),
				blank("python", model.DifficultyBeginner, 10,
					"The pandas function ____ reads a CSV file into a DataFrame.", "read_csv"),
				multi("python", model.DifficultyBeginner, 10,
					"Which of the following handle missing values in pandas?",
					[]string{"dropna()", "fillna()", "interpolate()"},
					[]string{"remove_nulls()"}),
				choice("python", model.DifficultyBeginner, 10,
					"What does df.shape return?",
					"A tuple of (rows, columns)", "The number of cells", "A list of column names", "The memory footprint"),
				truefalse("python", model.DifficultyBeginner, 10,
					"NumPy arrays are mutable.", true),
				choice("python", model.DifficultyBeginner, 10,
					"Which DataFrame method splits rows into groups for aggregation?",
					"groupby()", "pivot()", "melt()", "stack()"),
				blank("python", model.DifficultyBeginner, 10,
					"Boolean indexing selects rows where a ____ evaluates to True.", "condition"),
				essay("python", model.DifficultyBeginner, 10,
					"Explain the difference between a DataFrame and a Series, with one example use for each."),
			},
		},
		{
			assessment: model.Assessment{
				Slug:               "sql-fundamentals-certification",
				Title:              "SQL Fundamentals Certification",
				Description:        "Joins, aggregation, constraints and transaction basics on a relational database.",
				Category:           "sql",
				Difficulty:         model.DifficultyIntermediate,
				Mode:               model.ModeCertification,
				TimeLimitMinutes:   30,
				PassingScore:       70,
				ShuffleQuestions:   true,
				AllowReview:        false,
				RelatedSkills:      []string{"sql", "data-modeling", "query-optimization"},
				CertValidityMonths: 24,
			},
			questions: []model.Question{
				choice("sql", model.DifficultyIntermediate, 12,
					"Which clause filters rows after aggregation?",
					"HAVING", "WHERE", "GROUP BY", "ORDER BY"),
				choice("sql", model.DifficultyIntermediate, 12,
					"Which join returns all rows from both tables, matching where possible?",
					"FULL OUTER JOIN", "INNER JOIN", "LEFT JOIN", "CROSS JOIN"),
				truefalse("sql", model.DifficultyIntermediate, 12,
					"A PRIMARY KEY constraint implies a unique index.", true),
				blank("sql", model.DifficultyIntermediate, 12,
					"The ____ keyword removes duplicate rows from a SELECT result.", "distinct"),
				multi("sql", model.DifficultyIntermediate, 12,
					"Which statements modify data rather than schema?",
					[]string{"INSERT", "UPDATE", "DELETE"},
					[]string{"ALTER"}),
				choice("sql", model.DifficultyAdvanced, 14,
					"Which window function assigns a sequential number to rows within a partition?",
					"ROW_NUMBER()", "COUNT(*)", "NTILE(1)", "FIRST_VALUE()"),
				choice("sql", model.DifficultyAdvanced, 14,
					"Which isolation level prevents dirty reads but allows non-repeatable reads?",
					"READ COMMITTED", "READ UNCOMMITTED", "REPEATABLE READ", "SERIALIZABLE"),
				sqlQuery("sql", model.DifficultyAdvanced, 12,
					"Given orders(customer_id, amount), write a query returning the top 5 customers by total order value."),
			},
		},
		{
			assessment: model.Assessment{
				Slug:             "machine-learning-foundations",
				Title:            "Machine Learning Foundations",
				Description:      "Supervised learning concepts: model selection, evaluation, and the vocabulary of fitting.",
				Category:         "machine-learning",
				Difficulty:       model.DifficultyAdvanced,
				Mode:             model.ModePractice,
				TimeLimitMinutes: 25,
				PassingScore:     65,
				ShuffleQuestions: true,
				AllowReview:      true,
				RelatedSkills:    []string{"scikit-learn", "model-evaluation", "statistics"},
			},
			prereqSlugs: []string{"python-data-analysis-basics"},
			questions: []model.Question{
				choice("machine-learning", model.DifficultyAdvanced, 15,
					"A model that performs well on training data but poorly on unseen data suffers from what?",
					"Overfitting", "Underfitting", "Data leakage", "Class imbalance"),
				truefalse("machine-learning", model.DifficultyAdvanced, 15,
					"Increasing model complexity always reduces generalization error.", false),
				choice("machine-learning", model.DifficultyAdvanced, 15,
					"What is the purpose of a held-out test set?",
					"Estimating performance on unseen data", "Speeding up training", "Balancing classes", "Tuning hyperparameters"),
				multi("machine-learning", model.DifficultyAdvanced, 15,
					"Which of these are supervised learning algorithms?",
					[]string{"Linear regression", "Random forest", "Support vector machine"},
					[]string{"K-means clustering"}),
				blank("machine-learning", model.DifficultyAdvanced, 15,
					"Gradient ____ iteratively updates parameters against the loss gradient.", "descent"),
				coding("machine-learning", model.DifficultyExpert, 25,
					"Implement mse(y_true, y_pred) returning the mean squared error of two equal-length numeric sequences."),
			},
		},
	}
}

// ----------------------------------------------------------------
// Question builders
// ----------------------------------------------------------------

var optionIDs = []string{"a", "b", "c", "d", "e", "f"}

func choice(category string, diff model.Difficulty, points float64, prompt, correct string, wrong ...string) model.Question {
	q := model.Question{
		Type:       model.QuestionSingleChoice,
		Prompt:     prompt,
		Category:   category,
		Difficulty: diff,
		Points:     points,
	}
	q.Options = append(q.Options, model.QuestionOption{ID: optionIDs[0], Text: correct, IsCorrect: true})
	for i, w := range wrong {
		q.Options = append(q.Options, model.QuestionOption{ID: optionIDs[i+1], Text: w})
	}
	return q
}

func multi(category string, diff model.Difficulty, points float64, prompt string, correct, wrong []string) model.Question {
	q := model.Question{
		Type:       model.QuestionMultipleChoice,
		Prompt:     prompt,
		Category:   category,
		Difficulty: diff,
		Points:     points,
	}
	for i, c := range correct {
		q.Options = append(q.Options, model.QuestionOption{ID: optionIDs[i], Text: c, IsCorrect: true})
	}
	for i, w := range wrong {
		q.Options = append(q.Options, model.QuestionOption{ID: optionIDs[len(correct)+i], Text: w})
	}
	return q
}

func truefalse(category string, diff model.Difficulty, points float64, prompt string, answer bool) model.Question {
	return model.Question{
		Type:        model.QuestionTrueFalse,
		Prompt:      prompt,
		Category:    category,
		Difficulty:  diff,
		Points:      points,
		CorrectBool: &answer,
	}
}

func blank(category string, diff model.Difficulty, points float64, prompt string, answers ...string) model.Question {
	return model.Question{
		Type:       model.QuestionFillBlank,
		Prompt:     prompt,
		Category:   category,
		Difficulty: diff,
		Points:     points,
		Blanks:     answers,
	}
}

func essay(category string, diff model.Difficulty, points float64, prompt string) model.Question {
	return model.Question{
		Type:       model.QuestionEssay,
		Prompt:     prompt,
		Category:   category,
		Difficulty: diff,
		Points:     points,
	}
}

func sqlQuery(category string, diff model.Difficulty, points float64, prompt string) model.Question {
	return model.Question{
		Type:       model.QuestionSQLQuery,
		Prompt:     prompt,
		Category:   category,
		Difficulty: diff,
		Points:     points,
	}
}

func coding(category string, diff model.Difficulty, points float64, prompt string) model.Question {
	return model.Question{
		Type:       model.QuestionCodingChallenge,
		Prompt:     prompt,
		Category:   category,
		Difficulty: diff,
		Points:     points,
	}
}
