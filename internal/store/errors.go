package store

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrInvalidState     = errors.New("invalid session state")
)

// Unique constraint fields reported by UniqueViolation.
const (
	FieldSessionID = "sessionId"
	FieldBillID    = "billId"
	FieldCategory  = "category"
	FieldItem      = "item"
	FieldPortion   = "portion"
)

// UniqueViolation is returned when a write collides with a unique constraint.
// Field names the violated column group so callers can decide whether to retry.
type UniqueViolation struct {
	Field      string
	Constraint string
}

func (e *UniqueViolation) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("unique violation on %s (%s)", e.Field, e.Constraint)
	}
	return fmt.Sprintf("unique violation on %s", e.Field)
}

// IsUniqueViolation reports whether err is a unique violation on field.
// An empty field matches any violation.
func IsUniqueViolation(err error, field string) bool {
	var violation *UniqueViolation
	if !errors.As(err, &violation) {
		return false
	}
	return field == "" || violation.Field == field
}
