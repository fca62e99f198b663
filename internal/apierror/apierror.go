package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrInvalidState   ErrorCode = "INVALID_STATE"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

var httpStatus = map[ErrorCode]int{
	ErrNotFound:       http.StatusNotFound,
	ErrConflict:       http.StatusConflict,
	ErrInvalidInput:   http.StatusBadRequest,
	ErrInvalidState:   http.StatusConflict,
	ErrInternalServer: http.StatusInternalServerError,
}

// APIError is the error every layer returns to callers. Details carries the cause when there is one.
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e APIError) Unwrap() error {
	cause, _ := e.Details.(error)
	return cause
}

// NewAPIError builds an APIError. A non-nil cause is logged once here.
func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.WithField("code", code).Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func as(err error) (APIError, bool) {
	var apiErr APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// HasCode reports whether err, or an error it wraps, is an APIError with code.
func HasCode(err error, code ErrorCode) bool {
	apiErr, ok := as(err)
	return ok && apiErr.Code == code
}

// Message returns the human readable part of err. Internal errors keep their cause in the text,
// since only the message is persisted on failed jobs.
func Message(err error) string {
	apiErr, ok := as(err)
	if !ok {
		return err.Error()
	}
	if cause := apiErr.Unwrap(); cause != nil && apiErr.Code == ErrInternalServer {
		return fmt.Sprintf("%s: %v", apiErr.Message, cause)
	}
	return apiErr.Message
}

func MapErrorToHTTPStatus(err error) int {
	apiErr, ok := as(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if status, known := httpStatus[apiErr.Code]; known {
		return status
	}
	return http.StatusInternalServerError
}
