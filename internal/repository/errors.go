package repository

import "errors"

var (
	// ErrInUse is returned when a row is still referenced by current scores.
	ErrInUse = errors.New("referenced by current scores")
	// ErrHasScores is returned when deleting an enrollment that still holds scores without cascade.
	ErrHasScores = errors.New("enrollment has scores")
	// ErrNotInScheme is returned when a score targets a category absent from the offering scheme.
	ErrNotInScheme = errors.New("category not in offering scheme")
)
