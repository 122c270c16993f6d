package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/compoundlab-backend/internal/domain/aggregates"
)

const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeExternal   = "external_service_error"
	CodeAuth       = "unauthorized"
	CodeForbidden  = "forbidden"
	CodeInternal   = "internal_error"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeValidation, fmt.Errorf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, CodeNotFound, fmt.Errorf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(http.StatusConflict, CodeConflict, fmt.Errorf(format, args...))
}

func Auth(format string, args ...any) *Error {
	return New(http.StatusUnauthorized, CodeAuth, fmt.Errorf(format, args...))
}

func Forbidden(format string, args ...any) *Error {
	return New(http.StatusForbidden, CodeForbidden, fmt.Errorf(format, args...))
}

// External wraps a failure of a remote collaborator (registry, tracking service).
func External(service string, err error) *Error {
	return New(http.StatusBadGateway, CodeExternal, fmt.Errorf("%s: %w", service, err))
}

// As extracts an *Error from err, translating aggregate error codes on the way.
// Unknown errors become internal errors.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation:
		return New(http.StatusBadRequest, CodeValidation, err)
	case domainagg.CodeNotFound:
		return New(http.StatusNotFound, CodeNotFound, err)
	case domainagg.CodeConflict, domainagg.CodePreconditionFailed:
		return New(http.StatusConflict, CodeConflict, err)
	case domainagg.CodeRetryable:
		return New(http.StatusServiceUnavailable, "retryable", err)
	}
	return New(http.StatusInternalServerError, CodeInternal, err)
}

// Is reports whether err maps to the given api error code.
func Is(err error, code string) bool {
	e := As(err)
	return e != nil && e.Code == code
}
