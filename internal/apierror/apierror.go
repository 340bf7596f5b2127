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
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"

	// Issuer-facing settlement outcomes. Each maps to a dedicated status code
	// the card issuer understands.
	ErrTxReverted        ErrorCode = "TX_REVERTED"
	ErrBadCollection     ErrorCode = "BAD_COLLECTION"
	ErrCardNotFound      ErrorCode = "CARD_NOT_FOUND"
	ErrTxNotFound        ErrorCode = "TX_NOT_FOUND"
	ErrLockTimeout       ErrorCode = "LOCK_TIMEOUT"
	ErrSuspicious        ErrorCode = "SUSPICIOUS_CAPTURE"
	ErrInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrUnexpected        ErrorCode = "UNEXPECTED_ERROR"
)

const (
	StatusTxReverted        = 550
	StatusBadCollection     = 551
	StatusCardNotFound      = 552
	StatusTxNotFound        = 553
	StatusLockTimeout       = 554
	StatusSuspicious        = 556
	StatusInsufficientFunds = 557
	StatusUnexpected        = 569
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying error when Details carries one.
func (e APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

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

// CodeOf returns the error code carried by err, or ErrUnexpected.
func CodeOf(err error) ErrorCode {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrUnexpected
}

// MapErrorToHTTPStatus maps err to the status returned to the issuer. Storage and other internal
// failures share the issuer's unexpected-error status.
func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		return StatusUnexpected
	}
	switch apiErr.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrBadRequest, ErrInvalidInput:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrTxReverted:
		return StatusTxReverted
	case ErrBadCollection:
		return StatusBadCollection
	case ErrCardNotFound:
		return StatusCardNotFound
	case ErrTxNotFound:
		return StatusTxNotFound
	case ErrLockTimeout:
		return StatusLockTimeout
	case ErrSuspicious:
		return StatusSuspicious
	case ErrInsufficientFunds:
		return StatusInsufficientFunds
	default:
		return StatusUnexpected
	}
}
