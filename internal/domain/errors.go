package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound is returned for unknown attempt ids.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptInProgress is returned when the user already has a pending attempt for the quiz.
	ErrAttemptInProgress = errors.New("attempt already in progress")
	// ErrAttemptClosed is returned when an operation needs a pending attempt.
	ErrAttemptClosed = errors.New("attempt is not pending")
	// ErrAttemptExpired is returned for answers that arrive at or after the deadline.
	ErrAttemptExpired = errors.New("attempt deadline has passed")
	// ErrInvalidArgument marks malformed request parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInternal hides storage failures from callers.
	ErrInternal = errors.New("internal error")
)

// Kind is the stable, user-facing error code.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindInvalidState    Kind = "invalid_state"
	KindExpired         Kind = "expired"
	KindInvalidArgument Kind = "invalid_argument"
	KindInternal        Kind = "internal"
)

// KindOf classifies err. Anything outside the taxonomy is internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrAttemptNotFound), errors.Is(err, ErrQuestionNotFound):
		return KindNotFound
	case errors.Is(err, ErrAttemptInProgress):
		return KindConflict
	case errors.Is(err, ErrAttemptClosed):
		return KindInvalidState
	case errors.Is(err, ErrAttemptExpired):
		return KindExpired
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// InvalidArgument wraps ErrInvalidArgument with a formatted detail.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// InternalError carries a storage failure without exposing it in Error().
type InternalError struct {
	Cause error
}

// Internal wraps cause so callers only see ErrInternal.
func Internal(cause error) error {
	return &InternalError{Cause: cause}
}

func (e *InternalError) Error() string { return ErrInternal.Error() }

func (e *InternalError) Is(target error) bool { return target == ErrInternal }

func (e *InternalError) Unwrap() error { return e.Cause }
