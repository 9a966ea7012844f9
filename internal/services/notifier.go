package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"payment_app_echo/internal/models"
)

// PaymentNotifier is told about terminal state changes after they are
// persisted. Delivery is best effort: a notifier error never rolls back or
// fails the payment operation.
type PaymentNotifier interface {
	PaymentCompleted(ctx context.Context, payment *models.Payment) error
	PaymentCancelled(ctx context.Context, payment *models.Payment) error
}

// NoopNotifier discards all notifications
type NoopNotifier struct{}

func (NoopNotifier) PaymentCompleted(context.Context, *models.Payment) error { return nil }
func (NoopNotifier) PaymentCancelled(context.Context, *models.Payment) error { return nil }

// EmailNotifier emails the customer on completion and cancellation. Payments
// without a customer email are skipped silently.
type EmailNotifier struct {
	email  *EmailService
	logger *zap.Logger
}

func NewEmailNotifier(email *EmailService, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{email: email, logger: logger}
}

func (n *EmailNotifier) PaymentCompleted(ctx context.Context, payment *models.Payment) error {
	if payment.CustomerEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Payment completed for %s", payment.OrderName)
	body := fmt.Sprintf("Hello %s,\n\nYour payment of %s for %s has been completed.\nOrder ID: %s\n",
		payment.CustomerName, payment.Amount.String(), payment.OrderName, payment.OrderID)
	if err := n.email.SendEmail([]string{payment.CustomerEmail}, subject, body); err != nil {
		n.logger.Warn("failed to send completion email",
			zap.String("order_id", payment.OrderID), zap.Error(err))
		return err
	}
	return nil
}

func (n *EmailNotifier) PaymentCancelled(ctx context.Context, payment *models.Payment) error {
	if payment.CustomerEmail == "" {
		return nil
	}
	amount := payment.Amount
	if payment.CancelAmount.Valid {
		amount = payment.CancelAmount.Decimal
	}
	subject := fmt.Sprintf("Payment cancelled for %s", payment.OrderName)
	body := fmt.Sprintf("Hello %s,\n\nYour payment for %s has been cancelled.\nRefunded amount: %s\nOrder ID: %s\n",
		payment.CustomerName, payment.OrderName, amount.String(), payment.OrderID)
	if err := n.email.SendEmail([]string{payment.CustomerEmail}, subject, body); err != nil {
		n.logger.Warn("failed to send cancellation email",
			zap.String("order_id", payment.OrderID), zap.Error(err))
		return err
	}
	return nil
}
