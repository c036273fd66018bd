package domain

import (
	"errors"
	"fmt"
)

// ErrorType tags a DomainError with its place in the failure taxonomy.
type ErrorType string

const (
	ErrorTypeNotFound              ErrorType = "not_found"
	ErrorTypeInvalidTransition     ErrorType = "invalid_transition"
	ErrorTypeValidation            ErrorType = "validation"
	ErrorTypeExtractionUnavailable ErrorType = "extraction_unavailable"
	ErrorTypeExtractionFailed      ErrorType = "extraction_failed"
	ErrorTypePersistenceFailed     ErrorType = "persistence_failed"
	ErrorTypePhaseFailed           ErrorType = "phase_failed"
)

// Sentinel roots. Every DomainError of the matching type unwraps to one of these,
// so callers can use errors.Is without caring about the message.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrValidation            = errors.New("validation failed")
	ErrExtractionUnavailable = errors.New("extraction engine unavailable")
	ErrExtractionFailed      = errors.New("extraction failed")
	ErrPersistenceFailed     = errors.New("persistence failed")
	ErrPhaseFailed           = errors.New("phase failed")
)

var sentinels = map[ErrorType]error{
	ErrorTypeNotFound:              ErrNotFound,
	ErrorTypeInvalidTransition:     ErrInvalidTransition,
	ErrorTypeValidation:            ErrValidation,
	ErrorTypeExtractionUnavailable: ErrExtractionUnavailable,
	ErrorTypeExtractionFailed:      ErrExtractionFailed,
	ErrorTypePersistenceFailed:     ErrPersistenceFailed,
	ErrorTypePhaseFailed:           ErrPhaseFailed,
}

// DomainError is an error with a taxonomy tag and context.
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel root of the error's type.
func (e *DomainError) Is(target error) bool {
	return sentinels[e.Type] == target
}

// NewError creates a new domain error.
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

func NotFoundError(message string) *DomainError {
	return NewError(ErrorTypeNotFound, message, nil)
}

func InvalidTransitionError(message string) *DomainError {
	return NewError(ErrorTypeInvalidTransition, message, nil)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ExtractionUnavailableError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtractionUnavailable, message, err)
}

func ExtractionFailedError(message string, err error) *DomainError {
	return NewError(ErrorTypeExtractionFailed, message, err)
}

func PersistenceFailedError(message string, err error) *DomainError {
	return NewError(ErrorTypePersistenceFailed, message, err)
}

func PhaseFailedError(message string, err error) *DomainError {
	return NewError(ErrorTypePhaseFailed, message, err)
}

// TypeOf classifies err. Errors outside the taxonomy are phase failures.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type
	}
	for t, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return t
		}
	}
	return ErrorTypePhaseFailed
}
