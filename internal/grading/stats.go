package grading

import "github.com/noah-isme/academic-records-api/internal/models"

// Tally counts statuses across results. PassRate is computed over decided enrollments only.
func Tally(offeringID string, results []models.AggregateResult) models.OfferingStats {
	stats := models.OfferingStats{OfferingID: offeringID, Enrolled: len(results)}
	for _, r := range results {
		switch r.Status {
		case models.StatusPassing:
			stats.Passing++
		case models.StatusFailing:
			stats.Failing++
		default:
			stats.Pending++
		}
		if r.SchemeComplete {
			stats.SchemeComplete = true
		}
	}
	if decided := stats.Passing + stats.Failing; decided > 0 {
		rate := Round2(float64(stats.Passing) * 100 / float64(decided))
		stats.PassRate = &rate
	}
	stats.MeanAverage = PeriodAverage(results)
	return stats
}

// BelowThreshold reports whether a result carries an average under the pass mark.
// Provisional averages count.
func BelowThreshold(r models.AggregateResult, policy Policy) bool {
	return r.Average != nil && *r.Average < policy.PassThreshold
}
