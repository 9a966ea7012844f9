package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a payment
type PaymentStatus string

const (
	// PaymentStatusPending - request created, not yet approved by the gateway
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusCompleted - approved by the gateway; cancellable
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	// PaymentStatusFailed - confirmation failed; absorbing
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusCancelled - refunded after completion; absorbing
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// IsAbsorbing reports whether no further transition may leave this status.
// COMPLETED is not absorbing because it can still move to CANCELLED.
func (s PaymentStatus) IsAbsorbing() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// Payment is the single source of truth for a payment's state.
// Rows are never deleted; cancellation is a status transition so the
// audit trail stays intact.
type Payment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// PaymentKey is issued by the gateway on successful confirmation and is
	// set only then. Nullable so the partial unique index ignores rows that
	// never completed.
	PaymentKey *string `gorm:"type:varchar(100);uniqueIndex" json:"payment_key,omitempty"`

	OrderID       string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"order_id"`
	UserID        uint            `gorm:"index;not null" json:"user_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	OrderName     string          `gorm:"type:varchar(100);not null" json:"order_name"`
	CustomerName  string          `gorm:"type:varchar(50);not null" json:"customer_name"`
	CustomerEmail string          `gorm:"type:varchar(100)" json:"customer_email,omitempty"`
	CustomerPhone string          `gorm:"type:varchar(20)" json:"customer_phone,omitempty"`

	Status        PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMethod string        `gorm:"type:varchar(50)" json:"payment_method,omitempty"`

	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	CancelReason string              `gorm:"type:varchar(200)" json:"cancel_reason,omitempty"`
	CancelAmount decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"cancel_amount,omitempty"`

	// GatewayPayload keeps the raw gateway response for audit and
	// reconciliation. It is stored verbatim and only ever read back for
	// inspection, never interpreted by business logic.
	GatewayPayload json.RawMessage `gorm:"type:jsonb" json:"gateway_payload,omitempty"`
}

// IsPayable reports whether the payment can still be confirmed
func (p *Payment) IsPayable() bool {
	return p.Status == PaymentStatusPending
}

// IsCancellable reports whether the payment can be cancelled
func (p *Payment) IsCancellable() bool {
	return p.Status == PaymentStatusCompleted
}

// Fingerprint is the idempotency key for duplicate-create detection.
// The triple is deliberate: a retry with a corrected amount is treated as a
// distinct payment so legitimate re-attempts are not blocked.
func (p *Payment) Fingerprint() string {
	return fmt.Sprintf("%s_%d_%s", p.OrderID, p.UserID, p.Amount.String())
}

// Approve moves PENDING -> COMPLETED and records the gateway's key, method
// and raw response. Any other current status is rejected.
func (p *Payment) Approve(paymentKey, method string, approvedAt time.Time, payload json.RawMessage) error {
	if !p.IsPayable() {
		return fmt.Errorf("cannot approve payment in status %s", p.Status)
	}
	key := paymentKey
	p.PaymentKey = &key
	p.PaymentMethod = method
	p.Status = PaymentStatusCompleted
	p.ApprovedAt = &approvedAt
	p.GatewayPayload = payload
	return nil
}

// Fail moves PENDING -> FAILED with a failure reason. The payment_key column
// stays unset even when the gateway already issued a key during the failed
// attempt; the key survives inside the raw payload for reconciliation.
func (p *Payment) Fail(reason string, payload json.RawMessage) error {
	if !p.IsPayable() {
		return fmt.Errorf("cannot fail payment in status %s", p.Status)
	}
	p.Status = PaymentStatusFailed
	p.CancelReason = reason
	if payload != nil {
		p.GatewayPayload = payload
	}
	return nil
}

// Cancel moves COMPLETED -> CANCELLED, supporting partial refunds.
// The cancel amount must not exceed the original amount.
func (p *Payment) Cancel(reason string, amount decimal.Decimal, cancelledAt time.Time) error {
	if !p.IsCancellable() {
		return fmt.Errorf("cannot cancel payment in status %s", p.Status)
	}
	if amount.GreaterThan(p.Amount) {
		return fmt.Errorf("cancel amount %s exceeds payment amount %s", amount, p.Amount)
	}
	p.Status = PaymentStatusCancelled
	p.CancelReason = reason
	p.CancelAmount = decimal.NewNullDecimal(amount)
	p.CancelledAt = &cancelledAt
	return nil
}
