package models

// GradeStatus is the derived state of an enrollment.
type GradeStatus string

const (
	StatusPending GradeStatus = "PENDING"
	StatusPassing GradeStatus = "PASSING"
	StatusFailing GradeStatus = "FAILING"
)

// AggregateReason explains why a status was derived.
type AggregateReason string

const (
	ReasonSchemeIncomplete AggregateReason = "SCHEME_INCOMPLETE"
	ReasonNoScores         AggregateReason = "NO_SCORES"
	ReasonScoresIncomplete AggregateReason = "SCORES_INCOMPLETE"
	ReasonComplete         AggregateReason = "COMPLETE"
)

// AggregateResult is the computed grade for one enrollment.
type AggregateResult struct {
	Average        *float64        `json:"average"`
	Status         GradeStatus     `json:"status"`
	SchemeComplete bool            `json:"scheme_complete"`
	Reason         AggregateReason `json:"reason"`
	Missing        []string        `json:"missing"`
	WeightMass     float64         `json:"weight_mass"`
	SchemeVersion  int64           `json:"scheme_version"`
}
