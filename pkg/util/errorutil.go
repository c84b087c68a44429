package util

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes used across the service.
const (
	CodeAdapterFailure = "ADAPTER_FAILURE"
	CodeStorageFailure = "STORAGE_FAILURE"
	CodeInvalidState   = "INVALID_STATE"
	CodeNotFound       = "NOT_FOUND"
	CodeConfiguration  = "CONFIGURATION_INVALID"
	CodeInternal       = "INTERNAL_ERROR"
)

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewAdapterError wraps a failure from an external collaborator (mailbox,
// classifier, task gateway, SMTP).
func NewAdapterError(message string, err error) error {
	return &DomainError{
		Code:       CodeAdapterFailure,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewStorageError wraps a durability or consistency failure in the ticket store.
func NewStorageError(message string, err error) error {
	return &DomainError{
		Code:       CodeStorageFailure,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInvalidState reports an attempted transition that violates an entity
// invariant, such as re-assigning an external ref with a different value.
func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidState, message, http.StatusConflict, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewConfigError reports invalid startup configuration; callers treat it as fatal.
func NewConfigError(message string, details map[string]any) error {
	return NewDomainError(CodeConfiguration, message, http.StatusInternalServerError, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func hasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsInvalidState reports whether err is an invariant violation.
func IsInvalidState(err error) bool {
	return hasCode(err, CodeInvalidState)
}

// IsNotFound reports whether err is a missing-resource error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsConfiguration reports whether err is a startup configuration error.
func IsConfiguration(err error) bool {
	return hasCode(err, CodeConfiguration)
}
