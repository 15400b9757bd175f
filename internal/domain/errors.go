package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz does not exist or was removed while an attempt was running.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned when an attempt ID is unknown to the attempt repository.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrInvalidTransition is returned when an attempt operation is not legal in its current state.
	ErrInvalidTransition = errors.New("invalid attempt transition")
	// ErrUnknownQuestion indicates an answer referenced a question that is not part of the quiz.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrOutOfRange indicates a question index, option index or tick value is outside its bounds.
	ErrOutOfRange = errors.New("out of range")
	// ErrNavigationDisabled is returned by navigation when the quiz disallows free navigation.
	ErrNavigationDisabled = errors.New("question navigation disabled")
	// ErrAttemptNotFinished is returned when grading an attempt that is still running.
	ErrAttemptNotFinished = errors.New("attempt not finished")
	// ErrNoMatchingGrade signals a grading scheme whose bands do not cover a percentage.
	ErrNoMatchingGrade = errors.New("no matching grade band")
	// ErrMaxAttemptsReached is returned when a user exhausted the allowed attempts for a quiz.
	ErrMaxAttemptsReached = errors.New("maximum attempts reached")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrStore is matched by every *StoreError.
	ErrStore = errors.New("quiz store failure")
)

// ValidationError describes a malformed quiz, question or grading scheme.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// prefixed rewrites the field of a nested validation error, e.g. "questions[2].options".
func prefixed(prefix string, err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		field := prefix
		if ve.Field != "" {
			field = strings.Join([]string{prefix, ve.Field}, ".")
		}
		return &ValidationError{Field: field, Reason: ve.Reason}
	}
	return err
}

// StoreError wraps a failure raised by a quiz store collaborator.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("quiz store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
