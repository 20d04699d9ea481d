// Package grading computes weighted averages and enrollment status from an evaluation
// scheme and a set of current scores. It performs no I/O.
package grading

import (
	"math"

	"github.com/noah-isme/academic-records-api/internal/models"
)

// Aggregate derives the grade for one enrollment. It is deterministic: the same scheme,
// scores and policy always produce the same result.
//
// Only categories in the scheme count, each at most once (the first score seen wins). The
// average is renormalised over the weight mass of recorded categories, so a partial set of
// scores yields a provisional average while the status stays Pending.
func Aggregate(scheme models.EvaluationScheme, scores []models.CategoryScore, policy Policy) models.AggregateResult {
	byCategory := make(map[string]float64, len(scores))
	for _, s := range scores {
		if _, seen := byCategory[s.CategoryID]; !seen {
			byCategory[s.CategoryID] = s.Value
		}
	}

	result := models.AggregateResult{
		Status:         models.StatusPending,
		SchemeComplete: scheme.IsComplete(policy.WeightEpsilon),
		Missing:        []string{},
		SchemeVersion:  scheme.Version,
	}

	var sum, mass float64
	recorded := 0
	for _, entry := range scheme.Entries {
		value, ok := byCategory[entry.CategoryID]
		if !ok {
			result.Missing = append(result.Missing, entry.CategoryID)
			continue
		}
		recorded++
		sum += value * entry.Weight
		mass += entry.Weight
	}
	result.WeightMass = Round2(mass)

	if !result.SchemeComplete {
		result.Reason = models.ReasonSchemeIncomplete
		return result
	}
	if recorded == 0 {
		result.Reason = models.ReasonNoScores
		return result
	}
	if mass > 0 {
		avg := Round2(sum / mass)
		result.Average = &avg
	}
	if len(result.Missing) > 0 {
		result.Reason = models.ReasonScoresIncomplete
		return result
	}

	result.Reason = models.ReasonComplete
	switch {
	case result.Average == nil:
		// every recorded category carries zero weight
	case *result.Average < policy.PassThreshold:
		result.Status = models.StatusFailing
	default:
		result.Status = models.StatusPassing
	}
	return result
}

// Round2 rounds half-up to two decimals on the decimal representation, so 4.005 becomes 4.01.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}

// PeriodAverage is the mean of all non-nil averages, rounded to two decimals.
func PeriodAverage(results []models.AggregateResult) *float64 {
	total, n := 0.0, 0
	for _, r := range results {
		if r.Average == nil {
			continue
		}
		total += *r.Average
		n++
	}
	if n == 0 {
		return nil
	}
	avg := Round2(total / float64(n))
	return &avg
}
