// Package apperr defines the error taxonomy shared by the admin services.
//
// Callers match categories with errors.Is against the package sentinels and
// read the human-readable message from Error().
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels identifying each error category.
var (
	// ErrValidation marks invalid user input (bad lifespan, unknown permissions, ...).
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an operation on a missing resource where absence is not a valid outcome.
	ErrNotFound = errors.New("not found")

	// ErrApplication marks an opaque failure that must not reveal whether a resource exists.
	ErrApplication = errors.New("application error")

	// ErrConfig marks a missing or invalid configuration value.
	ErrConfig = errors.New("configuration error")
)

// ValidationError reports invalid input. The message is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ApplicationError is a generic failure. An empty message renders as "An application error occurred".
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return "An application error occurred"
	}
	return e.Message
}

// Is reports whether target is ErrApplication.
func (e *ApplicationError) Is(target error) bool { return target == ErrApplication }

// ConfigError reports a configuration problem, usually fatal at startup.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Validation builds a ValidationError.
func Validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError.
func NotFound(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// Application builds an ApplicationError. Pass no arguments for the opaque default message.
func Application(args ...any) error {
	if len(args) == 0 {
		return &ApplicationError{}
	}
	format, ok := args[0].(string)
	if !ok {
		return &ApplicationError{Message: fmt.Sprint(args...)}
	}
	return &ApplicationError{Message: fmt.Sprintf(format, args[1:]...)}
}

// Config builds a ConfigError.
func Config(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// Standard error codes for API responses.
const (
	CodeValidation  = "validation_error"
	CodeNotFound    = "not_found"
	CodeApplication = "application_error"
	CodeInternal    = "internal_error"
)

// HTTPStatus maps an error to the status code the HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrApplication):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the API error code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrApplication):
		return CodeApplication
	default:
		return CodeInternal
	}
}
