package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure recorded during an import run.
type Kind string

const (
	// KindDataBinding covers extraction and value binding failures
	KindDataBinding Kind = "DATA_BINDING"

	// KindValidation covers predicate rejections and entity validation failures
	KindValidation Kind = "VALIDATION"

	// KindUniqueViolation is recorded when a unique key policy rejects an entity
	KindUniqueViolation Kind = "UNIQUE_VIOLATION"

	// KindPersistence covers failures reported by the store
	KindPersistence Kind = "PERSISTENCE"

	// KindScripting covers failures raised by user supplied functions
	KindScripting Kind = "SCRIPTING"

	// KindGeneral is everything else, e.g. malformed configuration
	KindGeneral Kind = "GENERAL"
)

// Kinds lists every Kind in reporting order.
var Kinds = []Kind{KindDataBinding, KindValidation, KindUniqueViolation, KindPersistence, KindScripting, KindGeneral}

var (
	// ErrDataBinding indicates that raw data could not be bound to an entity
	ErrDataBinding = errors.New("data binding failed")

	// ErrValidation indicates that an entity failed validation
	ErrValidation = errors.New("validation failed")

	// ErrUniqueViolation indicates that a unique key policy aborted the import
	ErrUniqueViolation = errors.New("unique violation")

	// ErrPersistence indicates that the store could not write or read entities
	ErrPersistence = errors.New("persistence failed")

	// ErrScripting indicates that a user supplied function failed
	ErrScripting = errors.New("script execution failed")

	// ErrInvalidConfiguration indicates that an import configuration is malformed
	ErrInvalidConfiguration = errors.New("invalid import configuration")

	// ErrUnknownEntityType indicates that the metamodel has no such entity type
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrUnknownProperty indicates that the metamodel has no such property
	ErrUnknownProperty = errors.New("unknown property")
)

// Error represents a structured import error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation wraps a list of validation messages into an error matching ErrValidation.
func Validation(message string) *Error {
	return NewError(string(KindValidation), message, ErrValidation)
}

// Persistence wraps a store failure into an error matching ErrPersistence.
func Persistence(message string, err error) *Error {
	return NewError(string(KindPersistence), message, fmt.Errorf("%w: %v", ErrPersistence, err))
}

// Scripting wraps a user function failure into an error matching ErrScripting.
func Scripting(message string, err error) *Error {
	return NewError(string(KindScripting), message, fmt.Errorf("%w: %v", ErrScripting, err))
}

// InvalidConfiguration builds an error matching ErrInvalidConfiguration.
func InvalidConfiguration(format string, args ...interface{}) *Error {
	return NewError(string(KindGeneral), fmt.Sprintf(format, args...), ErrInvalidConfiguration)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPersistence checks if an error is a persistence error
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsScripting checks if an error was raised by a user function
func IsScripting(err error) bool {
	return errors.Is(err, ErrScripting)
}

// IsInvalidConfiguration checks if an error is a configuration error
func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// KindOf maps an error onto the failure taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUniqueViolation):
		return KindUniqueViolation
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrScripting):
		return KindScripting
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrDataBinding):
		return KindDataBinding
	default:
		return KindGeneral
	}
}
