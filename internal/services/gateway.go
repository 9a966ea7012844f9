package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GatewayConfirmation is the validated outcome of a gateway confirm call.
// Raw holds the untouched response body for audit storage.
type GatewayConfirmation struct {
	PaymentKey string
	Method     string
	ApprovedAt time.Time
	Raw        json.RawMessage
}

// GatewayCancellation is the outcome of a gateway cancel call
type GatewayCancellation struct {
	Status string
	Raw    json.RawMessage
}

// PaymentGateway is the adapter contract to the external payment processor.
// Implementations must honor the context deadline and return a *GatewayError
// for any processor-side rejection so callers can keep internals out of
// user-facing messages.
type PaymentGateway interface {
	Name() string
	Confirm(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) (*GatewayConfirmation, error)
	Cancel(ctx context.Context, paymentKey string, amount decimal.Decimal, reason string) (*GatewayCancellation, error)
}

// GatewayError wraps a failure from the payment gateway: HTTP errors,
// timeouts, or responses that fail validation. Body is kept for the audit
// payload only.
type GatewayError struct {
	Gateway    string
	StatusCode int
	Body       json.RawMessage
	Err        error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s gateway error: %v", e.Gateway, e.Err)
	}
	return fmt.Sprintf("%s gateway error: status %d", e.Gateway, e.StatusCode)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
