// Package apperr defines the error kinds reported to callers of the
// extraction pipeline. Every kind maps to a stable code and HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindStorage        Kind = "storage"
	KindFileProcessing Kind = "file-processing"
	KindLLM            Kind = "llm"
	KindConfiguration  Kind = "configuration"
	KindInternal       Kind = "internal"
)

// Code returns the stable wire code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindStorage:
		return "STORAGE_ERROR"
	case KindFileProcessing:
		return "FILE_PROCESSING_ERROR"
	case KindLLM:
		return "LLM_ERROR"
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus returns the status code used when the kind reaches the HTTP layer.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	case KindFileProcessing:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Code returns the stable wire code.
func (e *Error) Code() string {
	return e.Kind.Code()
}

// HTTPStatus returns the HTTP status for this error.
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// New creates an error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error { return New(KindValidation, message, nil) }

func Validationf(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...), nil)
}

func Storage(message string, cause error) *Error { return New(KindStorage, message, cause) }

func FileProcessing(message string, cause error) *Error {
	return New(KindFileProcessing, message, cause)
}

func LLM(message string, cause error) *Error { return New(KindLLM, message, cause) }

func Configuration(message string) *Error { return New(KindConfiguration, message, nil) }

func Configurationf(format string, args ...any) *Error {
	return New(KindConfiguration, fmt.Sprintf(format, args...), nil)
}

func Internal(message string, cause error) *Error { return New(KindInternal, message, cause) }

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
