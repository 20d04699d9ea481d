package service

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/academic-records-api/pkg/database"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

// storageError maps repository failures onto typed errors. Timeouts become STORAGE_TIMEOUT;
// anything else is internal.
func storageError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, database.ErrTimeout) {
		return appErrors.Wrap(err, appErrors.ErrStorageTimeout.Code, appErrors.ErrStorageTimeout.Status, message+": storage timed out")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// notFoundOr returns NOT_FOUND for sql.ErrNoRows and storageError otherwise.
func notFoundOr(err error, notFound, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return storageError(err, message)
}

// validationError converts validator output into a VALIDATION_ERROR naming the first field.
func validationError(err error, message string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := toSnake(verrs[0].Field())
		out := appErrors.WithField(appErrors.ErrValidation, field, fmt.Sprintf("%s: %s failed on %s", message, field, verrs[0].Tag()))
		out.Err = err
		return out
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (s[i-1] < 'A' || s[i-1] > 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
