package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment_app_echo/internal/models"
)

// PaymentService orchestrates the payment lifecycle: idempotent creation,
// gateway confirmation and cancellation/refund. All state transitions go
// through the store's conditional update so concurrent attempts on the same
// order cannot both win.
type PaymentService struct {
	store    PaymentStore
	gateway  PaymentGateway
	locks    *OrderLocker
	notifier PaymentNotifier
	logger   *zap.Logger
}

// NewPaymentService wires the service with its collaborators. locks may be
// nil when Redis is unavailable; the store's conditional update still
// guarantees single-winner transitions, the lock only avoids duplicate
// gateway calls.
func NewPaymentService(store PaymentStore, gateway PaymentGateway, locks *OrderLocker, notifier PaymentNotifier, logger *zap.Logger) *PaymentService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &PaymentService{
		store:    store,
		gateway:  gateway,
		locks:    locks,
		notifier: notifier,
		logger:   logger,
	}
}

// CreatePaymentInput carries a payment creation request. OrderID may be
// empty, in which case one is generated.
type CreatePaymentInput struct {
	OrderID       string
	UserID        uint
	Amount        decimal.Decimal
	OrderName     string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// PaymentSummary is the list/creation view of a payment
type PaymentSummary struct {
	OrderID       string               `json:"order_id"`
	Amount        decimal.Decimal      `json:"amount"`
	OrderName     string               `json:"order_name"`
	Status        models.PaymentStatus `json:"status"`
	PaymentMethod string               `json:"payment_method,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	ApprovedAt    *time.Time           `json:"approved_at,omitempty"`
}

// PaymentDetail is the full view of a payment including customer and
// cancellation fields
type PaymentDetail struct {
	PaymentSummary
	PaymentKey    string              `json:"payment_key,omitempty"`
	CustomerName  string              `json:"customer_name"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	CustomerPhone string              `json:"customer_phone,omitempty"`
	CancelReason  string              `json:"cancel_reason,omitempty"`
	CancelAmount  decimal.NullDecimal `json:"cancel_amount,omitempty"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
}

// PaymentList is the history view for one user
type PaymentList struct {
	Payments   []PaymentSummary `json:"payments"`
	TotalCount int              `json:"total_count"`
	HasMore    bool             `json:"has_more"`
}

// ConfirmResult reports the outcome of a confirmation attempt. Gateway
// failures come back as Success=false with a generic message instead of an
// error; validation problems are returned as *PaymentError.
type ConfirmResult struct {
	Success    bool                 `json:"success"`
	OrderID    string               `json:"order_id"`
	PaymentKey string               `json:"payment_key,omitempty"`
	Amount     decimal.Decimal      `json:"amount"`
	Status     models.PaymentStatus `json:"status,omitempty"`
	ApprovedAt *time.Time           `json:"approved_at,omitempty"`
	Message    string               `json:"message"`
}

// CancelResult reports the outcome of a cancellation attempt
type CancelResult struct {
	Success      bool            `json:"success"`
	OrderID      string          `json:"order_id"`
	CancelAmount decimal.Decimal `json:"cancel_amount,omitempty"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
	Message      string          `json:"message"`
}

// GenerateOrderID builds a unique order ID: ORDER_<unix millis>_<8 hex chars>
func GenerateOrderID() string {
	return fmt.Sprintf("ORDER_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// CreatePayment registers a new payment request in PENDING state. Duplicate
// requests with an identical (orderID, userID, amount) fingerprint against a
// PENDING or COMPLETED record are rejected.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*PaymentSummary, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, NewPaymentError(CodeInvalidAmount, "payment amount must be greater than zero")
	}
	if in.UserID == 0 {
		return nil, NewPaymentError(CodeInvalidRequest, "user id is required")
	}
	if strings.TrimSpace(in.OrderName) == "" || strings.TrimSpace(in.CustomerName) == "" {
		return nil, NewPaymentError(CodeInvalidRequest, "order name and customer name are required")
	}

	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		orderID = GenerateOrderID()
	}

	existing, err := s.store.FindByFingerprint(ctx, orderID, in.UserID, in.Amount)
	if err != nil {
		return nil, internalError(err)
	}
	if existing != nil {
		s.logger.Warn("duplicate payment request rejected",
			zap.String("fingerprint", existing.Fingerprint()),
			zap.String("existing_status", string(existing.Status)))
		return nil, NewPaymentError(CodeDuplicateRequest, "this payment request was already processed")
	}

	payment := &models.Payment{
		OrderID:       orderID,
		UserID:        in.UserID,
		Amount:        in.Amount,
		OrderName:     in.OrderName,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		CustomerPhone: in.CustomerPhone,
		Status:        models.PaymentStatusPending,
	}
	if err := s.store.Create(ctx, payment); err != nil {
		// Two identical creates racing past the fingerprint check collapse
		// on the order_id unique index.
		if errors.Is(err, ErrDuplicateKey) {
			return nil, NewPaymentError(CodeDuplicateRequest, "this payment request was already processed")
		}
		return nil, internalError(err)
	}

	s.recordEvent(ctx, orderID, models.PaymentEventCreated, nil)
	s.logger.Info("payment request created",
		zap.String("order_id", orderID),
		zap.Uint("user_id", in.UserID),
		zap.String("amount", in.Amount.String()))

	summary := toSummary(payment)
	return &summary, nil
}

// ConfirmPayment verifies and settles a PENDING payment with the gateway.
// The claimed amount is client-supplied and must equal the stored amount
// exactly; this check is never skipped.
func (s *PaymentService) ConfirmPayment(ctx context.Context, orderID, paymentKey string, claimedAmount decimal.Decimal) (*ConfirmResult, error) {
	payment, err := s.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, internalError(err)
	}
	if payment == nil {
		return nil, NewPaymentError(CodePaymentNotFound, fmt.Sprintf("payment not found for order %s", orderID))
	}
	if !payment.IsPayable() {
		return nil, NewPaymentError(CodeInvalidStateTransition,
			fmt.Sprintf("payment cannot be confirmed in status %s", payment.Status))
	}

	if !payment.Amount.Equal(claimedAmount) {
		s.logger.Warn("amount mismatch on confirm",
			zap.String("order_id", orderID),
			zap.String("stored", payment.Amount.String()),
			zap.String("claimed", claimedAmount.String()))
		return nil, NewPaymentError(CodeAmountMismatch, "payment amount does not match")
	}

	if s.locks != nil {
		acquired, err := s.locks.Acquire(ctx, orderID)
		if err != nil {
			return nil, internalError(err)
		}
		if !acquired {
			return nil, NewPaymentError(CodeInvalidStateTransition, "payment is already being processed")
		}
		defer s.locks.Release(ctx, orderID)
	}

	confirmation, gwErr := s.gateway.Confirm(ctx, paymentKey, orderID, payment.Amount)
	if gwErr != nil {
		return s.failConfirmation(ctx, payment, gwErr), nil
	}

	var updated models.Payment
	ok, err := s.store.UpdateIfStatus(ctx, orderID, models.PaymentStatusPending, func(p *models.Payment) error {
		if err := p.Approve(confirmation.PaymentKey, confirmation.Method, confirmation.ApprovedAt, confirmation.Raw); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	if !ok {
		// a concurrent attempt completed or failed this payment first
		s.logger.Warn("confirm lost the transition race", zap.String("order_id", orderID))
		return nil, NewPaymentError(CodeInvalidStateTransition, "payment was already processed")
	}

	s.recordEvent(ctx, orderID, models.PaymentEventCompleted, confirmation.Raw)
	_ = s.notifier.PaymentCompleted(ctx, &updated)

	s.logger.Info("payment confirmed",
		zap.String("order_id", orderID),
		zap.String("payment_key", confirmation.PaymentKey),
		zap.String("method", confirmation.Method))

	return &ConfirmResult{
		Success:    true,
		OrderID:    orderID,
		PaymentKey: confirmation.PaymentKey,
		Amount:     payment.Amount,
		Status:     models.PaymentStatusCompleted,
		ApprovedAt: updated.ApprovedAt,
		Message:    "payment completed successfully",
	}, nil
}

// failConfirmation transitions a payment to FAILED after a gateway error and
// builds the structured failure result. The gateway's raw response (which may
// contain a key from a partial attempt) is persisted for reconciliation; the
// payment_key column stays unset.
func (s *PaymentService) failConfirmation(ctx context.Context, payment *models.Payment, gwErr error) *ConfirmResult {
	s.logger.Error("gateway confirmation failed",
		zap.String("order_id", payment.OrderID),
		zap.Error(gwErr))

	var payload json.RawMessage
	var gerr *GatewayError
	if errors.As(gwErr, &gerr) && len(gerr.Body) > 0 {
		payload = gerr.Body
	}
	reason := truncate(gwErr.Error(), 200)

	ok, err := s.store.UpdateIfStatus(ctx, payment.OrderID, models.PaymentStatusPending, func(p *models.Payment) error {
		return p.Fail(reason, payload)
	})
	if err != nil {
		s.logger.Error("failed to mark payment as FAILED",
			zap.String("order_id", payment.OrderID), zap.Error(err))
	} else if ok {
		s.recordEvent(ctx, payment.OrderID, models.PaymentEventFailed, payload)
	}

	return &ConfirmResult{
		Success: false,
		OrderID: payment.OrderID,
		Amount:  payment.Amount,
		Status:  models.PaymentStatusFailed,
		Message: "payment processing failed, please try again later",
	}
}

// CancelPayment refunds a COMPLETED payment, fully or partially. A gateway
// failure leaves the record COMPLETED so the caller can safely retry.
func (s *PaymentService) CancelPayment(ctx context.Context, orderID, reason string, cancelAmount *decimal.Decimal) (*CancelResult, error) {
	payment, err := s.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, internalError(err)
	}
	if payment == nil {
		return nil, NewPaymentError(CodePaymentNotFound, fmt.Sprintf("payment not found for order %s", orderID))
	}
	if payment.Status == models.PaymentStatusCancelled {
		return nil, NewPaymentError(CodeAlreadyCancelled, "payment is already cancelled")
	}
	if !payment.IsCancellable() {
		return nil, NewPaymentError(CodeInvalidStateTransition,
			fmt.Sprintf("payment cannot be cancelled in status %s", payment.Status))
	}

	amount := payment.Amount
	if cancelAmount != nil {
		if cancelAmount.LessThanOrEqual(decimal.Zero) {
			return nil, NewPaymentError(CodeInvalidAmount, "cancel amount must be greater than zero")
		}
		if cancelAmount.GreaterThan(payment.Amount) {
			return nil, NewPaymentError(CodeInvalidAmount, "cancel amount exceeds the payment amount")
		}
		amount = *cancelAmount
	}

	if payment.PaymentKey == nil {
		// a COMPLETED payment always carries a key; treat the inconsistency
		// as an internal failure rather than calling the gateway blind
		return nil, NewPaymentError(CodeInternalError, "payment record is missing its gateway key")
	}

	if s.locks != nil {
		acquired, err := s.locks.Acquire(ctx, orderID)
		if err != nil {
			return nil, internalError(err)
		}
		if !acquired {
			return nil, NewPaymentError(CodeInvalidStateTransition, "payment is already being processed")
		}
		defer s.locks.Release(ctx, orderID)
	}

	cancellation, gwErr := s.gateway.Cancel(ctx, *payment.PaymentKey, amount, reason)
	if gwErr != nil {
		s.logger.Error("gateway cancellation failed",
			zap.String("order_id", orderID),
			zap.Error(gwErr))
		return &CancelResult{
			Success: false,
			OrderID: orderID,
			Message: "payment cancellation failed, please try again later",
		}, nil
	}

	now := time.Now()
	var updated models.Payment
	ok, err := s.store.UpdateIfStatus(ctx, orderID, models.PaymentStatusCompleted, func(p *models.Payment) error {
		if err := p.Cancel(reason, amount, now); err != nil {
			return err
		}
		updated = *p
		return nil
	})
	if err != nil {
		return nil, internalError(err)
	}
	if !ok {
		return nil, NewPaymentError(CodeAlreadyCancelled, "payment was already cancelled")
	}

	s.recordEvent(ctx, orderID, models.PaymentEventCancelled, cancellation.Raw)
	_ = s.notifier.PaymentCancelled(ctx, &updated)

	s.logger.Info("payment cancelled",
		zap.String("order_id", orderID),
		zap.String("cancel_amount", amount.String()),
		zap.String("reason", reason))

	return &CancelResult{
		Success:      true,
		OrderID:      orderID,
		CancelAmount: amount,
		CancelledAt:  updated.CancelledAt,
		Message:      "payment cancelled successfully",
	}, nil
}

// GetHistory lists a user's payments, newest first
func (s *PaymentService) GetHistory(ctx context.Context, userID uint) (*PaymentList, error) {
	payments, err := s.store.ListByUserID(ctx, userID)
	if err != nil {
		return nil, internalError(err)
	}

	summaries := make([]PaymentSummary, 0, len(payments))
	for i := range payments {
		summaries = append(summaries, toSummary(&payments[i]))
	}
	return &PaymentList{Payments: summaries, TotalCount: len(summaries), HasMore: false}, nil
}

// GetDetail returns the full payment record for one order
func (s *PaymentService) GetDetail(ctx context.Context, orderID string) (*PaymentDetail, error) {
	payment, err := s.store.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, internalError(err)
	}
	if payment == nil {
		return nil, NewPaymentError(CodePaymentNotFound, fmt.Sprintf("payment not found for order %s", orderID))
	}

	detail := &PaymentDetail{
		PaymentSummary: toSummary(payment),
		CustomerName:   payment.CustomerName,
		CustomerEmail:  payment.CustomerEmail,
		CustomerPhone:  payment.CustomerPhone,
		CancelReason:   payment.CancelReason,
		CancelAmount:   payment.CancelAmount,
		CancelledAt:    payment.CancelledAt,
	}
	if payment.PaymentKey != nil {
		detail.PaymentKey = *payment.PaymentKey
	}
	return detail, nil
}

// ExpireStalePayments fails PENDING payments older than maxAge. Run
// periodically by the worker so abandoned checkouts do not stay PENDING
// forever. Returns the number of payments expired.
func (s *PaymentService) ExpireStalePayments(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	stale, err := s.store.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		orderID := stale[i].OrderID
		ok, err := s.store.UpdateIfStatus(ctx, orderID, models.PaymentStatusPending, func(p *models.Payment) error {
			return p.Fail("payment expired before confirmation", nil)
		})
		if err != nil {
			s.logger.Error("failed to expire payment", zap.String("order_id", orderID), zap.Error(err))
			continue
		}
		if ok {
			s.recordEvent(ctx, orderID, models.PaymentEventExpired, nil)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Info("expired stale pending payments", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *PaymentService) recordEvent(ctx context.Context, orderID string, eventType models.PaymentEventType, metadata json.RawMessage) {
	event := &models.PaymentEvent{
		OrderID:   orderID,
		EventType: eventType,
		Gateway:   s.gateway.Name(),
		Metadata:  metadata,
	}
	if err := s.store.RecordEvent(ctx, event); err != nil {
		s.logger.Error("failed to record payment event",
			zap.String("order_id", orderID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func toSummary(p *models.Payment) PaymentSummary {
	return PaymentSummary{
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		OrderName:     p.OrderName,
		Status:        p.Status,
		PaymentMethod: p.PaymentMethod,
		CreatedAt:     p.CreatedAt,
		ApprovedAt:    p.ApprovedAt,
	}
}

func internalError(err error) *PaymentError {
	return NewPaymentErrorWithCause(CodeInternalError, "an unexpected error occurred", err)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
