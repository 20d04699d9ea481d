package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
)

func standardScheme() models.EvaluationScheme {
	return models.EvaluationScheme{
		OfferingID: "off-1",
		Version:    3,
		Entries: []models.SchemeEntry{
			{CategoryID: "exam", Weight: 40},
			{CategoryID: "lab", Weight: 30},
			{CategoryID: "project", Weight: 20},
			{CategoryID: "participation", Weight: 10},
		},
	}
}

func scores(pairs ...interface{}) []models.CategoryScore {
	out := make([]models.CategoryScore, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.CategoryScore{CategoryID: pairs[i].(string), Value: pairs[i+1].(float64)})
	}
	return out
}

func TestAggregate(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		name     string
		scheme   models.EvaluationScheme
		scores   []models.CategoryScore
		average  *float64
		status   models.GradeStatus
		reason   models.AggregateReason
		complete bool
		missing  []string
	}{
		{
			name:     "partial scores stay pending with provisional average",
			scheme:   standardScheme(),
			scores:   scores("exam", 4.0, "lab", 4.5),
			average:  ptr(4.21),
			status:   models.StatusPending,
			reason:   models.ReasonScoresIncomplete,
			complete: true,
			missing:  []string{"project", "participation"},
		},
		{
			name:     "all scores passing",
			scheme:   standardScheme(),
			scores:   scores("exam", 4.0, "lab", 4.5, "project", 3.0, "participation", 5.0),
			average:  ptr(4.05),
			status:   models.StatusPassing,
			reason:   models.ReasonComplete,
			complete: true,
			missing:  []string{},
		},
		{
			name:     "all scores failing",
			scheme:   standardScheme(),
			scores:   scores("exam", 2.0, "lab", 2.0, "project", 2.0, "participation", 2.0),
			average:  ptr(2.0),
			status:   models.StatusFailing,
			reason:   models.ReasonComplete,
			complete: true,
			missing:  []string{},
		},
		{
			name:     "exactly the threshold passes",
			scheme:   standardScheme(),
			scores:   scores("exam", 3.0, "lab", 3.0, "project", 3.0, "participation", 3.0),
			average:  ptr(3.0),
			status:   models.StatusPassing,
			reason:   models.ReasonComplete,
			complete: true,
			missing:  []string{},
		},
		{
			name: "incomplete scheme never decides",
			scheme: models.EvaluationScheme{Entries: []models.SchemeEntry{
				{CategoryID: "exam", Weight: 50},
				{CategoryID: "lab", Weight: 30},
			}},
			scores:   scores("exam", 5.0, "lab", 5.0),
			status:   models.StatusPending,
			reason:   models.ReasonSchemeIncomplete,
			complete: false,
			missing:  []string{},
		},
		{
			name:     "no scores",
			scheme:   standardScheme(),
			status:   models.StatusPending,
			reason:   models.ReasonNoScores,
			complete: true,
			missing:  []string{"exam", "lab", "project", "participation"},
		},
		{
			name:     "scores outside the scheme are ignored",
			scheme:   standardScheme(),
			scores:   scores("quiz", 0.0),
			status:   models.StatusPending,
			reason:   models.ReasonNoScores,
			complete: true,
			missing:  []string{"exam", "lab", "project", "participation"},
		},
		{
			name: "weights within epsilon count as complete",
			scheme: models.EvaluationScheme{Entries: []models.SchemeEntry{
				{CategoryID: "exam", Weight: 33.33},
				{CategoryID: "lab", Weight: 33.33},
				{CategoryID: "project", Weight: 33.34},
			}},
			scores:   scores("exam", 3.0, "lab", 3.0, "project", 3.0),
			average:  ptr(3.0),
			status:   models.StatusPassing,
			reason:   models.ReasonComplete,
			complete: true,
			missing:  []string{},
		},
		{
			name: "zero weight recorded alone yields no average",
			scheme: models.EvaluationScheme{Entries: []models.SchemeEntry{
				{CategoryID: "exam", Weight: 100},
				{CategoryID: "bonus", Weight: 0},
			}},
			scores:   scores("bonus", 5.0),
			status:   models.StatusPending,
			reason:   models.ReasonScoresIncomplete,
			complete: true,
			missing:  []string{"exam"},
		},
		{
			name: "zero weight category still required for completeness",
			scheme: models.EvaluationScheme{Entries: []models.SchemeEntry{
				{CategoryID: "exam", Weight: 100},
				{CategoryID: "bonus", Weight: 0},
			}},
			scores:   scores("exam", 4.0),
			average:  ptr(4.0),
			status:   models.StatusPending,
			reason:   models.ReasonScoresIncomplete,
			complete: true,
			missing:  []string{"bonus"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Aggregate(tc.scheme, tc.scores, policy)
			if tc.average == nil {
				assert.Nil(t, result.Average)
			} else {
				require.NotNil(t, result.Average)
				assert.InDelta(t, *tc.average, *result.Average, 1e-9)
			}
			assert.Equal(t, tc.status, result.Status)
			assert.Equal(t, tc.reason, result.Reason)
			assert.Equal(t, tc.complete, result.SchemeComplete)
			assert.Equal(t, tc.missing, result.Missing)
		})
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	scheme := standardScheme()
	in := scores("participation", 5.0, "exam", 4.0, "project", 3.0, "lab", 4.5)
	reversed := scores("lab", 4.5, "project", 3.0, "exam", 4.0, "participation", 5.0)

	first := Aggregate(scheme, in, DefaultPolicy())
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Aggregate(scheme, in, DefaultPolicy()))
	}
	assert.Equal(t, first, Aggregate(scheme, reversed, DefaultPolicy()))
	assert.Equal(t, int64(3), first.SchemeVersion)
}

func TestAggregateCountsCategoryOnce(t *testing.T) {
	result := Aggregate(standardScheme(), scores(
		"exam", 4.0, "exam", 1.0, "lab", 4.5, "project", 3.0, "participation", 5.0,
	), DefaultPolicy())

	require.NotNil(t, result.Average)
	assert.Equal(t, 4.05, *result.Average)
	assert.Equal(t, 100.0, result.WeightMass)
}

func TestRound2HalfUp(t *testing.T) {
	assert.Equal(t, 4.01, Round2(4.005))
	assert.Equal(t, 2.68, Round2(2.675))
	assert.Equal(t, 4.21, Round2(295.0/70.0))
	assert.Equal(t, 0.0, Round2(0))
}

func TestPeriodAverageSkipsPending(t *testing.T) {
	results := []models.AggregateResult{
		{Average: ptr(4.0)},
		{Average: nil},
		{Average: ptr(3.0)},
	}
	avg := PeriodAverage(results)
	require.NotNil(t, avg)
	assert.Equal(t, 3.5, *avg)
	assert.Nil(t, PeriodAverage(nil))
}

func TestTally(t *testing.T) {
	results := []models.AggregateResult{
		{Status: models.StatusPassing, Average: ptr(4.0), SchemeComplete: true},
		{Status: models.StatusFailing, Average: ptr(2.0), SchemeComplete: true},
		{Status: models.StatusPassing, Average: ptr(3.5), SchemeComplete: true},
		{Status: models.StatusPending, SchemeComplete: true},
	}
	stats := Tally("off-1", results)

	assert.Equal(t, 4, stats.Enrolled)
	assert.Equal(t, 2, stats.Passing)
	assert.Equal(t, 1, stats.Failing)
	assert.Equal(t, 1, stats.Pending)
	require.NotNil(t, stats.PassRate)
	assert.Equal(t, 66.67, *stats.PassRate)
	require.NotNil(t, stats.MeanAverage)
	assert.Equal(t, 3.17, *stats.MeanAverage)
}

func TestPolicyInRange(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.InRange(0))
	assert.True(t, p.InRange(5))
	assert.False(t, p.InRange(5.5))
	assert.False(t, p.InRange(-0.1))
}

func ptr(v float64) *float64 { return &v }
