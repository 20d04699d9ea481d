package models

import "time"

// Score is the current value for one category of an enrollment. The row's existence is the
// current marker; superseded values live in ScoreRevision.
type Score struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	CategoryID   string    `db:"category_id" json:"category_id"`
	CategoryName string    `db:"category_name" json:"category_name"`
	Value        float64   `db:"value" json:"value"`
	Note         *string   `db:"note" json:"note,omitempty"`
	RecordedBy   string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RevisionAction classifies a history row.
type RevisionAction string

const (
	RevisionCreate RevisionAction = "CREATE"
	RevisionUpdate RevisionAction = "UPDATE"
	RevisionDelete RevisionAction = "DELETE"
)

// ScoreRevision is an append-only history row.
type ScoreRevision struct {
	ID           string         `db:"id" json:"id"`
	ScoreID      string         `db:"score_id" json:"score_id"`
	EnrollmentID string         `db:"enrollment_id" json:"enrollment_id"`
	CategoryID   string         `db:"category_id" json:"category_id"`
	CategoryName string         `db:"category_name" json:"category_name"`
	Value        float64        `db:"value" json:"value"`
	Note         *string        `db:"note" json:"note,omitempty"`
	RecordedBy   string         `db:"recorded_by" json:"recorded_by"`
	Action       RevisionAction `db:"action" json:"action"`
	Revision     int64          `db:"revision" json:"revision"`
	RecordedAt   time.Time      `db:"recorded_at" json:"recorded_at"`
}

// CategoryScore pairs a category with its current value.
type CategoryScore struct {
	CategoryID   string  `json:"category_id"`
	CategoryName string  `json:"category_name,omitempty"`
	Value        float64 `json:"value"`
}

// ScoreSeq is a finite, restartable sequence over an immutable snapshot of current scores.
type ScoreSeq struct {
	items []CategoryScore
}

// NewScoreSeq snapshots items into a sequence.
func NewScoreSeq(items []CategoryScore) ScoreSeq {
	snapshot := make([]CategoryScore, len(items))
	copy(snapshot, items)
	return ScoreSeq{items: snapshot}
}

// Each yields every element in order until fn returns false. It may be called repeatedly.
func (s ScoreSeq) Each(fn func(CategoryScore) bool) {
	for _, item := range s.items {
		if !fn(item) {
			return
		}
	}
}

// Len returns the number of elements.
func (s ScoreSeq) Len() int {
	return len(s.items)
}

// Slice returns a copy of the elements.
func (s ScoreSeq) Slice() []CategoryScore {
	out := make([]CategoryScore, len(s.items))
	copy(out, s.items)
	return out
}

// RecordScoreRequest is the typed write payload for a score.
type RecordScoreRequest struct {
	EnrollmentID string   `json:"enrollment_id" validate:"required"`
	CategoryID   string   `json:"category_id" validate:"required"`
	Value        *float64 `json:"value" validate:"required"`
	Note         *string  `json:"note" validate:"omitempty,max=512"`
}

// RecordScoreResult reports the stored score and whether it was newly created.
type RecordScoreResult struct {
	Score   *Score `json:"score"`
	Created bool   `json:"created"`
}

// ValidateScoreRequest checks a value without writing it.
type ValidateScoreRequest struct {
	Value *float64 `json:"value" validate:"required"`
}

// ScoreValidation is the outcome of a dry-run range check.
type ScoreValidation struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}
