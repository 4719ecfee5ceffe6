package service

import (
	"fmt"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

// RubricResult carries the server-side recomputed supervisor scores.
type RubricResult struct {
	Scores  []int64
	Total   int
	Average float64
}

// ScoreSupervisorRubric validates the fixed 10-criterion rubric and
// recomputes total and average. Client-supplied aggregates are ignored.
func ScoreSupervisorRubric(scores []int) (*RubricResult, error) {
	if len(scores) != models.SupervisorCriteriaCount {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("exactly %d criteria scores are required", models.SupervisorCriteriaCount))
	}

	total := 0
	stored := make([]int64, len(scores))
	for i, score := range scores {
		if score < 1 || score > 5 {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("criterion %d score must be between 1 and 5", i+1))
		}
		total += score
		stored[i] = int64(score)
	}

	return &RubricResult{
		Scores:  stored,
		Total:   total,
		Average: float64(total) / float64(models.SupervisorCriteriaCount),
	}, nil
}

// DetailedRubricCategory is one of the seven assessment categories, each
// holding exactly two sub-item scores.
type DetailedRubricCategory struct {
	Name   string `json:"name" validate:"required"`
	Scores []int  `json:"scores" validate:"required"`
}

const (
	detailedRubricCategories   = 7
	detailedRubricSubItemCount = 2
)

// ScoreDetailedRubric validates the 7x2 detailed rubric and returns the flat
// mean over all fourteen sub-items. Every sub-item must be rated.
func ScoreDetailedRubric(categories []DetailedRubricCategory) (float64, error) {
	if len(categories) != detailedRubricCategories {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("exactly %d rubric categories are required", detailedRubricCategories))
	}

	total := 0
	count := 0
	for _, category := range categories {
		if len(category.Scores) != detailedRubricSubItemCount {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("category %q must have exactly %d sub-item scores", category.Name, detailedRubricSubItemCount))
		}
		for i, score := range category.Scores {
			if score < 1 || score > 5 {
				return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("category %q sub-item %d must be between 1 and 5", category.Name, i+1))
			}
			total += score
			count++
		}
	}

	return float64(total) / float64(count), nil
}
