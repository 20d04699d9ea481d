package models

import "time"

// EvaluationCategory is a global catalog entry such as Exam or Lab.
type EvaluationCategory struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CreateCategoryRequest is the payload for adding a catalog entry.
type CreateCategoryRequest struct {
	Code        string  `json:"code" validate:"required,max=32"`
	Name        string  `json:"name" validate:"required,max=128"`
	Description *string `json:"description" validate:"omitempty,max=512"`
}

// RenameCategoryRequest changes the display name of an unreferenced category.
type RenameCategoryRequest struct {
	Name        string  `json:"name" validate:"required,max=128"`
	Description *string `json:"description" validate:"omitempty,max=512"`
}
