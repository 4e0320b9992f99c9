package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrSettlementFailure ErrorCode = "SETTLEMENT_FAILURE"
	ErrExternalCall      ErrorCode = "EXTERNAL_CALL_FAILURE"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrInFlight          ErrorCode = "IN_FLIGHT"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e APIError) Unwrap() error {
	return e.cause
}

// Retryable reports whether the caller may repeat the same request unchanged.
func (e APIError) Retryable() bool {
	return e.Code == ErrExternalCall || e.Code == ErrInFlight
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Wrap is NewAPIError keeping cause reachable through errors.Is and errors.As.
func Wrap(code ErrorCode, message string, cause error) APIError {
	apiErr := NewAPIError(code, message, nil)
	apiErr.cause = cause
	if cause != nil {
		apiErr.Details = cause.Error()
	}
	return apiErr
}

// CodeOf returns the code of the first APIError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return "", false
}

func MapErrorToHTTPStatus(err error) int {
	code, ok := CodeOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrInvalidTransition, ErrInFlight:
		return http.StatusConflict
	case ErrInvalidInput, ErrBadRequest, ErrValidation:
		return http.StatusBadRequest
	case ErrSettlementFailure:
		return http.StatusPaymentRequired
	case ErrExternalCall:
		return http.StatusBadGateway
	case ErrInternalServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
