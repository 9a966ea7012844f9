package services

import (
	"errors"
	"fmt"
)

// Error codes for the payment core. Handlers map these to HTTP statuses;
// clients branch on them.
const (
	CodeDuplicateRequest       = "DUPLICATE_REQUEST"
	CodePaymentNotFound        = "PAYMENT_NOT_FOUND"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeAmountMismatch         = "AMOUNT_MISMATCH"
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeAlreadyCancelled       = "ALREADY_CANCELLED"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeGatewayError           = "GATEWAY_ERROR"
	CodeInternalError          = "INTERNAL_ERROR"
)

// PaymentError is the typed error returned by the payment core. Message is
// safe to show to end users; gateway internals never end up in it.
type PaymentError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func NewPaymentError(code, message string) *PaymentError {
	return &PaymentError{Code: code, Message: message}
}

func NewPaymentErrorWithCause(code, message string, cause error) *PaymentError {
	return &PaymentError{Code: code, Message: message, Err: cause}
}

// IsPaymentError reports whether err carries the given payment error code
func IsPaymentError(err error, code string) bool {
	var perr *PaymentError
	if errors.As(err, &perr) {
		return perr.Code == code
	}
	return false
}

// ErrorCode extracts the payment error code from err, or CodeInternalError
// for anything unrecognized.
func ErrorCode(err error) string {
	var perr *PaymentError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return CodeInternalError
}
