package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound reports an unknown id, or one that belongs to another user.
var ErrNotFound = errors.New("not found")

// ValidationError rejects input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ImportError fails a whole ICS import. Component is the zero-based VEVENT
// index, or -1 when the document itself could not be read.
type ImportError struct {
	Component int
	UID       string
	Err       error
}

func (e *ImportError) Error() string {
	switch {
	case e.Component < 0:
		return fmt.Sprintf("import ics: %v", e.Err)
	case e.UID != "":
		return fmt.Sprintf("import ics: event %d (%s): %v", e.Component, e.UID, e.Err)
	default:
		return fmt.Sprintf("import ics: event %d: %v", e.Component, e.Err)
	}
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// notFound maps gorm's missing-record error onto ErrNotFound and leaves
// everything else untouched.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w: %w", what, ErrNotFound, err)
	}
	return err
}
