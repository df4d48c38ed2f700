// Package orcherr defines the structured error taxonomy shared by every
// orchestrator component. Only these kinds cross component boundaries.
package orcherr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is one of the kinds listed in the error handling design. No other
// kind is allowed to cross a component boundary.
type Code string

const (
	CodeUnauthenticated      Code = "UNAUTHENTICATED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeConflict             Code = "CONFLICT"
	CodeOverloaded           Code = "OVERLOADED"
	CodeProviderUnavailable  Code = "PROVIDER_UNAVAILABLE"
	CodeTransient            Code = "TRANSIENT"
	CodeInternal             Code = "INTERNAL"
)

// Category groups codes for metrics and logging.
type Category string

const (
	CategoryAuth     Category = "auth"
	CategoryRequest  Category = "request"
	CategoryCapacity Category = "capacity"
	CategoryProvider Category = "provider"
	CategoryInternal Category = "internal"
)

// Error is the structured error type returned by every fallible operation.
type Error struct {
	Code       Code                   `json:"code"`
	Category   Category               `json:"category"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component,omitempty"`
	Operation  string                 `json:"operation,omitempty"`
	Context    map[string]string      `json:"context,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"http_status,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Cause      error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Component != "" && e.Operation != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
	}
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports equality by code, so errors.Is(err, orcherr.NotFound("", "")) works
// without caring about message text.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return e.Code == o.Code
	}
	return false
}

// JSON renders the error for an HTTP response body. Never includes Cause,
// credentials, or secrets.
func (e *Error) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"INTERNAL","message":%q}`, "failed to marshal error")
	}
	return string(data)
}

// New builds an Error with the category/retryable/HTTP-status defaults for code.
func New(code Code, component, message string) *Error {
	return &Error{
		Code:       code,
		Category:   categoryOf(code),
		Message:    message,
		Component:  component,
		Retryable:  retryableByDefault(code),
		HTTPStatus: httpStatusOf(code),
		Timestamp:  time.Now(),
	}
}

func (e *Error) WithOperation(op string) *Error { e.Operation = op; return e }

func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *Error) WithCause(cause error) *Error { e.Cause = cause; return e }

func categoryOf(code Code) Category {
	switch code {
	case CodeUnauthenticated, CodeForbidden:
		return CategoryAuth
	case CodeNotFound, CodeInvalidArgument, CodeConflict:
		return CategoryRequest
	case CodeOverloaded:
		return CategoryCapacity
	case CodeProviderUnavailable, CodeTransient:
		return CategoryProvider
	default:
		return CategoryInternal
	}
}

func retryableByDefault(code Code) bool {
	return code == CodeTransient
}

func httpStatusOf(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeOverloaded:
		return http.StatusTooManyRequests
	case CodeProviderUnavailable:
		return http.StatusBadGateway
	case CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors, mirroring the teacher's NewXxxError family.

func Unauthenticated(component, message string) *Error {
	return New(CodeUnauthenticated, component, message)
}

func Forbidden(component, message string) *Error {
	return New(CodeForbidden, component, message)
}

func NotFound(component, message string) *Error {
	return New(CodeNotFound, component, message)
}

func InvalidArgument(component, message string) *Error {
	return New(CodeInvalidArgument, component, message)
}

func Conflict(component, message string) *Error {
	return New(CodeConflict, component, message)
}

func Overloaded(component, message string) *Error {
	return New(CodeOverloaded, component, message)
}

func ProviderUnavailable(component, message string) *Error {
	return New(CodeProviderUnavailable, component, message)
}

func Transient(component, message string) *Error {
	return New(CodeTransient, component, message)
}

func Internal(component, message string) *Error {
	return New(CodeInternal, component, message)
}

// CodeOf extracts the Code from err, defaulting to INTERNAL for unstructured
// errors so callers always have a taxonomy member to act on.
func CodeOf(err error) Code {
	var o *Error
	if errors.As(err, &o) {
		return o.Code
	}
	return CodeInternal
}

// Retryable reports whether err should be retried by a caller following the
// Migration Engine's retry policy (TRANSIENT and, by caller override, QUOTA_EXCEEDED).
func Retryable(err error) bool {
	var o *Error
	if errors.As(err, &o) {
		return o.Retryable
	}
	return false
}
