package sdk

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by APIError codes. Use errors.Is() to check.
var (
	ErrBadRequest     = errors.New("tablekit: bad request")
	ErrValidation     = errors.New("tablekit: validation failed")
	ErrUnknownDoctype = errors.New("tablekit: unknown doctype")
	ErrUnknownField   = errors.New("tablekit: unknown field")
	ErrNotFound       = errors.New("tablekit: not found")
	ErrNotImplemented = errors.New("tablekit: not implemented by the backend")
	ErrTransport      = errors.New("tablekit: backend unavailable")
	ErrInternal       = errors.New("tablekit: internal server error")
)

var codeSentinels = map[string]error{
	"bad_request":       ErrBadRequest,
	"validation_failed": ErrValidation,
	"unknown_doctype":   ErrUnknownDoctype,
	"unknown_field":     ErrUnknownField,
	"not_found":         ErrNotFound,
	"not_implemented":   ErrNotImplemented,
	"transport_error":   ErrTransport,
	"internal_error":    ErrInternal,
}

// APIError is a non-2xx response of the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("tablekit: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tablekit: %s (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is matches the sentinel of the error code.
func (e *APIError) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}
