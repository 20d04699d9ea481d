package models

import (
	"math"
	"time"
)

// FullWeight is the total percentage a complete scheme sums to.
const FullWeight = 100.0

// SchemeEntry is the weight of one category within an offering.
type SchemeEntry struct {
	ID           string    `db:"id" json:"id"`
	OfferingID   string    `db:"offering_id" json:"offering_id"`
	CategoryID   string    `db:"category_id" json:"category_id"`
	CategoryCode string    `db:"category_code" json:"category_code"`
	CategoryName string    `db:"category_name" json:"category_name"`
	Weight       float64   `db:"weight" json:"weight"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// EvaluationScheme is the versioned weighting of an offering, loaded as an explicit value.
type EvaluationScheme struct {
	OfferingID string        `json:"offering_id"`
	Version    int64         `json:"version"`
	Entries    []SchemeEntry `json:"entries"`
}

// TotalWeight sums all entry weights.
func (s EvaluationScheme) TotalWeight() float64 {
	total := 0.0
	for _, e := range s.Entries {
		total += e.Weight
	}
	return total
}

// IsComplete reports whether the weights sum to 100 within epsilon.
func (s EvaluationScheme) IsComplete(epsilon float64) bool {
	return math.Abs(s.TotalWeight()-FullWeight) <= epsilon
}

// Weights maps category id to percentage.
func (s EvaluationScheme) Weights() map[string]float64 {
	weights := make(map[string]float64, len(s.Entries))
	for _, e := range s.Entries {
		weights[e.CategoryID] = e.Weight
	}
	return weights
}

// Entry finds the entry for a category.
func (s EvaluationScheme) Entry(categoryID string) (SchemeEntry, bool) {
	for _, e := range s.Entries {
		if e.CategoryID == categoryID {
			return e, true
		}
	}
	return SchemeEntry{}, false
}

// SetWeightRequest is the payload for PUT /offerings/:id/scheme/:categoryId.
type SetWeightRequest struct {
	Weight *float64 `json:"weight" validate:"required"`
}

// SchemeView is the read model returned by the scheme endpoint.
type SchemeView struct {
	OfferingID  string             `json:"offering_id"`
	Version     int64              `json:"version"`
	Entries     []SchemeEntry      `json:"entries"`
	Weights     map[string]float64 `json:"weights"`
	TotalWeight float64            `json:"total_weight"`
	Complete    bool               `json:"complete"`
}
