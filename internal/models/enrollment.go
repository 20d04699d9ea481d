package models

import "time"

// Enrollment registers a student in an offering. ScoreRevision changes on every score mutation.
type Enrollment struct {
	ID            string    `db:"id" json:"id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	OfferingID    string    `db:"offering_id" json:"offering_id"`
	EnrolledAt    time.Time `db:"enrolled_at" json:"enrolled_at"`
	ScoreRevision int64     `db:"score_revision" json:"score_revision"`
}

// EnrollmentDetail enriches Enrollment with offering info needed by notifications and summaries.
type EnrollmentDetail struct {
	Enrollment
	OfferingCode  string `db:"offering_code" json:"offering_code"`
	SubjectName   string `db:"subject_name" json:"subject_name"`
	TermName      string `db:"term_name" json:"term_name"`
	SchemeVersion int64  `db:"scheme_version" json:"scheme_version"`
}

// CreateEnrollmentRequest enrolls a student in an offering.
type CreateEnrollmentRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	OfferingID string `json:"offering_id" validate:"required"`
}

// ArchivedEnrollment is the snapshot kept when an enrollment is removed with its scores.
type ArchivedEnrollment struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	OfferingID   string    `db:"offering_id" json:"offering_id"`
	Snapshot     []byte    `db:"snapshot" json:"-"`
	ArchivedBy   string    `db:"archived_by" json:"archived_by"`
	ArchivedAt   time.Time `db:"archived_at" json:"archived_at"`
}

// EnrollmentSnapshot is the archived state of an enrollment and its scores at deletion.
type EnrollmentSnapshot struct {
	Enrollment EnrollmentDetail `json:"enrollment"`
	Scores     []Score          `json:"scores"`
}

// ArchiveDetail is an archive row with its decoded snapshot.
type ArchiveDetail struct {
	ArchivedEnrollment
	EnrollmentSnapshot
}
