package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies scoring failures so callers can react to the
// specific cause.
type ErrorKind string

const (
	ErrCollection  ErrorKind = "collection"
	ErrAggregation ErrorKind = "aggregation"
	ErrPersistence ErrorKind = "persistence"
	ErrNotFound    ErrorKind = "not_found"
	ErrInvalid     ErrorKind = "invalid"
	ErrUnknown     ErrorKind = "unknown"
)

// ScoringError carries an ErrorKind through an error chain.
type ScoringError struct {
	Kind      ErrorKind
	SubjectID string
	Err       error
}

func (e *ScoringError) Error() string {
	if e.SubjectID != "" {
		return fmt.Sprintf("%s error for %s: %v", e.Kind, e.SubjectID, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// NewError wraps err with kind. A nil err yields nil.
func NewError(kind ErrorKind, subjectID string, err error) error {
	if err == nil {
		return nil
	}
	return &ScoringError{Kind: kind, SubjectID: subjectID, Err: err}
}

// KindOf returns the kind of the outermost ScoringError in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *ScoringError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrUnknown
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
