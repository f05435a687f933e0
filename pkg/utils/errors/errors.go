package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of an error
type ErrorType uint

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeInvalidArgument represents an invalid argument error
	ErrorTypeInvalidArgument
	// ErrorTypeNotFound represents a not found error
	ErrorTypeNotFound
	// ErrorTypeConfiguration represents a missing or inconsistent market data mapping
	ErrorTypeConfiguration
	// ErrorTypeConsistency represents a failed observer update
	ErrorTypeConsistency
	// ErrorTypeComputation represents a pricer that could not produce a number
	ErrorTypeComputation
	// ErrorTypeUnsupported represents an operation a variant does not provide
	ErrorTypeUnsupported
	// ErrorTypeNetwork represents a network error
	ErrorTypeNetwork
	// ErrorTypeInternal represents an internal error
	ErrorTypeInternal
	// ErrorTypeUnavailable represents work refused under load
	ErrorTypeUnavailable
)

var typeNames = map[ErrorType]string{
	ErrorTypeUnknown:         "unknown",
	ErrorTypeInvalidArgument: "invalid_argument",
	ErrorTypeNotFound:        "not_found",
	ErrorTypeConfiguration:   "configuration",
	ErrorTypeConsistency:     "consistency",
	ErrorTypeComputation:     "computation",
	ErrorTypeUnsupported:     "unsupported",
	ErrorTypeNetwork:         "network",
	ErrorTypeInternal:        "internal",
	ErrorTypeUnavailable:     "unavailable",
}

// String returns the snake_case name of the error type
func (t ErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new error with the given message
func New(message string) error {
	return &AppError{
		Type:    ErrorTypeUnknown,
		Message: message,
	}
}

// Newf creates a new error with the given format and arguments
func Newf(format string, args ...interface{}) error {
	return &AppError{
		Type:    ErrorTypeUnknown,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with a message, keeping the type of the wrapped AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:    TypeOf(err),
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithType returns err re-labelled with errType
func WithType(err error, errType ErrorType) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if As(err, &appErr) {
		return &AppError{
			Type:    errType,
			Message: appErr.Message,
			Err:     appErr.Err,
		}
	}
	return &AppError{
		Type:    errType,
		Message: err.Error(),
	}
}

// TypeOf returns the type of the first AppError in err's chain
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// HasType reports whether the first AppError in err's chain has the given type
func HasType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// Is reports whether err or any of the errors in its chain is target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func newTyped(errType ErrorType, format string, args ...interface{}) error {
	return &AppError{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidArgumentf creates a new InvalidArgument error
func InvalidArgumentf(format string, args ...interface{}) error {
	return newTyped(ErrorTypeInvalidArgument, format, args...)
}

// NotFoundf creates a new NotFound error
func NotFoundf(format string, args ...interface{}) error {
	return newTyped(ErrorTypeNotFound, format, args...)
}

// Configurationf creates a new Configuration error
func Configurationf(format string, args ...interface{}) error {
	return newTyped(ErrorTypeConfiguration, format, args...)
}

// Consistencyf creates a new Consistency error
func Consistencyf(format string, args ...interface{}) error {
	return newTyped(ErrorTypeConsistency, format, args...)
}

// Computationf creates a new Computation error
func Computationf(format string, args ...interface{}) error {
	return newTyped(ErrorTypeComputation, format, args...)
}

// Unsupportedf creates a new Unsupported error
func Unsupportedf(format string, args ...interface{}) error {
	return newTyped(ErrorTypeUnsupported, format, args...)
}

// Internalf creates a new Internal error
func Internalf(format string, args ...interface{}) error {
	return newTyped(ErrorTypeInternal, format, args...)
}

// Unavailablef creates a new Unavailable error
func Unavailablef(format string, args ...interface{}) error {
	return newTyped(ErrorTypeUnavailable, format, args...)
}

// Common error values
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)
