package models

import (
	"encoding/json"
	"time"
)

type PaymentEventType string

const (
	PaymentEventCreated   PaymentEventType = "payment.created"
	PaymentEventCompleted PaymentEventType = "payment.completed"
	PaymentEventFailed    PaymentEventType = "payment.failed"
	PaymentEventCancelled PaymentEventType = "payment.cancelled"
	PaymentEventExpired   PaymentEventType = "payment.expired"
)

// PaymentEvent records every state change of a payment, one row per
// transition, including the raw gateway metadata that triggered it.
type PaymentEvent struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	OrderID   string           `gorm:"type:varchar(100);index;not null" json:"order_id"`
	EventType PaymentEventType `gorm:"type:varchar(50);not null" json:"event_type"`
	Gateway   string           `gorm:"type:varchar(50)" json:"gateway"`
	Metadata  json.RawMessage  `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
