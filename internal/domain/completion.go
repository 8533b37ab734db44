package domain

import (
	"math"

	"github.com/mylabook/opsflow/internal/domain/models"
)

// inProgressCredit is the share of a step counted toward completion while it is in progress
// (count-based branch only).
const inProgressCredit = 0.5

// ComputeCompletion rolls steps up into a 0-100 completion percentage. First applicable rule wins:
//
//  1. no steps: the entity's stored probability, else 0
//  2. some weight present: sum of completed weights, capped at 100. The denominator is 100, not the total weight.
//  3. all weights zero: (completed + 0.5*in_progress) / total
//
// Rounding happens once at the end of each branch. Malformed weights count as zero.
func ComputeCompletion(steps []models.StepInstance, entityProbability *float64) int {
	if len(steps) == 0 {
		if entityProbability == nil {
			return 0
		}
		return clampPercent(math.Round(sanitizeWeight(*entityProbability)))
	}

	var totalWeight, completedWeight float64
	for i := range steps {
		w := sanitizeWeight(steps[i].ProbabilityPercent)
		totalWeight += w
		if steps[i].Status == models.StepStatusCompleted {
			completedWeight += w
		}
	}

	if totalWeight > 0 {
		return clampPercent(math.Round(math.Min(100, completedWeight)))
	}

	var completed, inProgress int
	for i := range steps {
		switch steps[i].Status {
		case models.StepStatusCompleted:
			completed++
		case models.StepStatusInProgress:
			inProgress++
		}
	}
	ratio := (float64(completed) + inProgressCredit*float64(inProgress)) / float64(len(steps))
	return clampPercent(math.Round(ratio * 100))
}

func sanitizeWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}

func clampPercent(v float64) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
