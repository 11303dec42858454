package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError carrying the same code, so sentinels like
// ErrConflict can be used with errors.Is regardless of message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the error code onto a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict, ErrSlotNoLongerAvailable, ErrTerminalState:
		return http.StatusConflict
	case ErrInvalidTransition:
		return http.StatusUnprocessableEntity
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
	ErrInvalidTransition
	ErrTerminalState
	ErrSlotNoLongerAvailable
	ErrUnavailable
	ErrRateLimited
)

// Sentinels for errors.Is checks.
var (
	NotFoundError              = &AppError{Code: ErrNotFound, Message: "not found"}
	ConflictError              = &AppError{Code: ErrConflict, Message: "conflict"}
	ForbiddenError             = &AppError{Code: ErrForbidden, Message: "forbidden"}
	UnauthorizedError          = &AppError{Code: ErrUnauthorized, Message: "unauthorized"}
	InvalidTransitionError     = &AppError{Code: ErrInvalidTransition, Message: "invalid transition"}
	TerminalStateError         = &AppError{Code: ErrTerminalState, Message: "terminal state violation"}
	SlotNoLongerAvailableError = &AppError{Code: ErrSlotNoLongerAvailable, Message: "slot no longer available"}
	UnavailableError           = &AppError{Code: ErrUnavailable, Message: "service unavailable"}
	BadRequestError            = &AppError{Code: ErrBadRequest, Message: "bad request"}
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func TerminalState(status string) *AppError {
	return &AppError{
		Code:    ErrTerminalState,
		Message: fmt.Sprintf("appointment is %s and can no longer change", status),
	}
}

func SlotNoLongerAvailable(err error) *AppError {
	return &AppError{
		Code:    ErrSlotNoLongerAvailable,
		Message: "the selected slot is no longer available, reload availability and pick again",
		Err:     err,
	}
}

func Unavailable(err error) *AppError {
	return &AppError{
		Code:    ErrUnavailable,
		Message: "upstream data source unavailable",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is and As re-export the standard helpers so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
