package models

// EnrollmentSummary is the read model served to presentation layers. History is ordered by
// revision.
type EnrollmentSummary struct {
	Enrollment EnrollmentDetail   `json:"enrollment"`
	Aggregate  AggregateResult    `json:"aggregate"`
	Scheme     EvaluationScheme   `json:"scheme"`
	Weights    map[string]float64 `json:"weights"`
	Scores     []CategoryScore    `json:"scores"`
	History    []ScoreRevision    `json:"history"`
}

// Transcript lists every enrollment of a student plus the mean of available averages.
type Transcript struct {
	StudentID     string              `json:"student_id"`
	Enrollments   []EnrollmentSummary `json:"enrollments"`
	PeriodAverage *float64            `json:"period_average"`
}

// AtRiskEntry is an enrollment whose current average is below the pass threshold.
type AtRiskEntry struct {
	EnrollmentID string      `json:"enrollment_id"`
	StudentID    string      `json:"student_id"`
	OfferingID   string      `json:"offering_id"`
	SubjectName  string      `json:"subject_name"`
	Average      float64     `json:"average"`
	Status       GradeStatus `json:"status"`
}

// OfferingStats summarises status counts for an offering.
type OfferingStats struct {
	OfferingID     string   `json:"offering_id"`
	Enrolled       int      `json:"enrolled"`
	Passing        int      `json:"passing"`
	Failing        int      `json:"failing"`
	Pending        int      `json:"pending"`
	PassRate       *float64 `json:"pass_rate"`
	MeanAverage    *float64 `json:"mean_average"`
	SchemeComplete bool     `json:"scheme_complete"`
}
