package models

import "time"

// Offering is a subject taught in a term. SchemeVersion changes on every scheme mutation.
type Offering struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	SubjectName   string    `db:"subject_name" json:"subject_name"`
	TermName      string    `db:"term_name" json:"term_name"`
	InstructorID  *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	SchemeVersion int64     `db:"scheme_version" json:"scheme_version"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
