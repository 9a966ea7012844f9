package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payment_app_echo/internal/models"
)

// memStore is an in-memory PaymentStore with the same visible semantics as
// the Postgres implementation: unique order IDs and single-winner
// conditional updates.
type memStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	events   []*models.PaymentEvent
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{payments: make(map[string]*models.Payment)}
}

func (s *memStore) seed(p *models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	s.payments[p.OrderID] = &cp
}

func (s *memStore) get(orderID string) *models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (s *memStore) eventTypes(orderID string) []models.PaymentEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []models.PaymentEventType
	for _, e := range s.events {
		if e.OrderID == orderID {
			types = append(types, e.EventType)
		}
	}
	return types
}

func (s *memStore) Create(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[payment.OrderID]; exists {
		return ErrDuplicateKey
	}
	s.nextID++
	payment.ID = s.nextID
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	cp := *payment
	s.payments[payment.OrderID] = &cp
	return nil
}

func (s *memStore) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return s.get(orderID), nil
}

func (s *memStore) FindByFingerprint(ctx context.Context, orderID string, userID uint, amount decimal.Decimal) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.OrderID == orderID && p.UserID == userID && p.Amount.Equal(amount) &&
			(p.Status == models.PaymentStatusPending || p.Status == models.PaymentStatusCompleted) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListByUserID(ctx context.Context, userID uint) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListStalePending(ctx context.Context, olderThan time.Time) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) UpdateIfStatus(ctx context.Context, orderID string, expected models.PaymentStatus, mutate func(*models.Payment) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[orderID]
	if !ok || p.Status != expected {
		return false, nil
	}
	cp := *p
	if err := mutate(&cp); err != nil {
		return false, err
	}
	s.payments[orderID] = &cp
	return true, nil
}

func (s *memStore) RecordEvent(ctx context.Context, event *models.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// stubGateway is a scriptable PaymentGateway
type stubGateway struct {
	confirmErr   error
	cancelErr    error
	confirmCalls int32
	cancelCalls  int32
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) Confirm(ctx context.Context, paymentKey, orderID string, amount decimal.Decimal) (*GatewayConfirmation, error) {
	atomic.AddInt32(&g.confirmCalls, 1)
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &GatewayConfirmation{
		PaymentKey: paymentKey,
		Method:     "card",
		ApprovedAt: time.Now(),
		Raw:        []byte(`{"status":"DONE"}`),
	}, nil
}

func (g *stubGateway) Cancel(ctx context.Context, paymentKey string, amount decimal.Decimal, reason string) (*GatewayCancellation, error) {
	atomic.AddInt32(&g.cancelCalls, 1)
	if g.cancelErr != nil {
		return nil, g.cancelErr
	}
	return &GatewayCancellation{Status: "CANCELED", Raw: []byte(`{"status":"CANCELED"}`)}, nil
}

func newTestService(store PaymentStore, gw PaymentGateway) *PaymentService {
	return NewPaymentService(store, gw, nil, nil, zap.NewNop())
}

func pendingPayment(orderID string, userID uint, amount int64) *models.Payment {
	return &models.Payment{
		OrderID:      orderID,
		UserID:       userID,
		Amount:       decimal.NewFromInt(amount),
		OrderName:    "Test Order",
		CustomerName: "Tester",
		Status:       models.PaymentStatusPending,
	}
}

func completedPayment(orderID string, userID uint, amount int64) *models.Payment {
	p := pendingPayment(orderID, userID, amount)
	key := "pk_" + orderID
	p.PaymentKey = &key
	p.Status = models.PaymentStatusCompleted
	now := time.Now()
	p.ApprovedAt = &now
	return p
}

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending payment", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, &stubGateway{})

		summary, err := svc.CreatePayment(ctx, CreatePaymentInput{
			OrderID:      "ORDER_1",
			UserID:       1,
			Amount:       decimal.NewFromInt(50000),
			OrderName:    "Premium Plan",
			CustomerName: "Kim",
		})
		require.NoError(t, err)
		assert.Equal(t, "ORDER_1", summary.OrderID)
		assert.Equal(t, models.PaymentStatusPending, summary.Status)

		stored := store.get("ORDER_1")
		require.NotNil(t, stored)
		assert.Equal(t, models.PaymentStatusPending, stored.Status)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventCreated}, store.eventTypes("ORDER_1"))
	})

	t.Run("generates an order id when absent", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, &stubGateway{})

		summary, err := svc.CreatePayment(ctx, CreatePaymentInput{
			UserID:       1,
			Amount:       decimal.NewFromInt(1000),
			OrderName:    "Order",
			CustomerName: "Kim",
		})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(summary.OrderID, "ORDER_"))
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		svc := newTestService(newMemStore(), &stubGateway{})
		for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-100)} {
			_, err := svc.CreatePayment(ctx, CreatePaymentInput{
				UserID: 1, Amount: amount, OrderName: "Order", CustomerName: "Kim",
			})
			assert.True(t, IsPaymentError(err, CodeInvalidAmount))
		}
	})

	t.Run("rejects a missing user", func(t *testing.T) {
		svc := newTestService(newMemStore(), &stubGateway{})
		_, err := svc.CreatePayment(ctx, CreatePaymentInput{
			Amount: decimal.NewFromInt(1000), OrderName: "Order", CustomerName: "Kim",
		})
		assert.True(t, IsPaymentError(err, CodeInvalidRequest))
	})

	t.Run("duplicate fingerprint against a pending record is blocked", func(t *testing.T) {
		store := newMemStore()
		store.seed(pendingPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		_, err := svc.CreatePayment(ctx, CreatePaymentInput{
			OrderID: "ORDER_1", UserID: 1, Amount: decimal.NewFromInt(50000),
			OrderName: "Order", CustomerName: "Kim",
		})
		assert.True(t, IsPaymentError(err, CodeDuplicateRequest))
	})

	t.Run("duplicate fingerprint against a completed record is blocked", func(t *testing.T) {
		store := newMemStore()
		store.seed(completedPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		_, err := svc.CreatePayment(ctx, CreatePaymentInput{
			OrderID: "ORDER_1", UserID: 1, Amount: decimal.NewFromInt(50000),
			OrderName: "Order", CustomerName: "Kim",
		})
		assert.True(t, IsPaymentError(err, CodeDuplicateRequest))
	})

	t.Run("a failed record does not block a fresh attempt", func(t *testing.T) {
		store := newMemStore()
		failed := pendingPayment("ORDER_1", 1, 50000)
		failed.Status = models.PaymentStatusFailed
		store.seed(failed)
		svc := newTestService(store, &stubGateway{})

		_, err := svc.CreatePayment(ctx, CreatePaymentInput{
			OrderID: "ORDER_2", UserID: 1, Amount: decimal.NewFromInt(50000),
			OrderName: "Order", CustomerName: "Kim",
		})
		assert.NoError(t, err)
	})
}

func TestConfirmPayment(t *testing.T) {
	ctx := context.Background()
	amount := decimal.NewFromInt(50000)

	t.Run("confirms a pending payment", func(t *testing.T) {
		store := newMemStore()
		store.seed(pendingPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		result, err := svc.ConfirmPayment(ctx, "ORDER_1", "pk_123", amount)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "pk_123", result.PaymentKey)
		assert.Equal(t, models.PaymentStatusCompleted, result.Status)

		stored := store.get("ORDER_1")
		assert.Equal(t, models.PaymentStatusCompleted, stored.Status)
		require.NotNil(t, stored.PaymentKey)
		assert.Equal(t, "pk_123", *stored.PaymentKey)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventCompleted}, store.eventTypes("ORDER_1"))
	})

	t.Run("unknown order", func(t *testing.T) {
		svc := newTestService(newMemStore(), &stubGateway{})
		_, err := svc.ConfirmPayment(ctx, "ORDER_MISSING", "pk_123", amount)
		assert.True(t, IsPaymentError(err, CodePaymentNotFound))
	})

	t.Run("non-pending payment is rejected before the gateway is called", func(t *testing.T) {
		store := newMemStore()
		store.seed(completedPayment("ORDER_1", 1, 50000))
		gw := &stubGateway{}
		svc := newTestService(store, gw)

		_, err := svc.ConfirmPayment(ctx, "ORDER_1", "pk_123", amount)
		assert.True(t, IsPaymentError(err, CodeInvalidStateTransition))
		assert.EqualValues(t, 0, atomic.LoadInt32(&gw.confirmCalls))
	})

	t.Run("amount mismatch leaves the payment untouched", func(t *testing.T) {
		store := newMemStore()
		store.seed(pendingPayment("ORDER_1", 1, 50000))
		gw := &stubGateway{}
		svc := newTestService(store, gw)

		_, err := svc.ConfirmPayment(ctx, "ORDER_1", "pk_123", decimal.NewFromInt(45000))
		assert.True(t, IsPaymentError(err, CodeAmountMismatch))
		assert.Equal(t, models.PaymentStatusPending, store.get("ORDER_1").Status)
		assert.EqualValues(t, 0, atomic.LoadInt32(&gw.confirmCalls))
	})

	t.Run("gateway failure fails the payment with a generic message", func(t *testing.T) {
		store := newMemStore()
		store.seed(pendingPayment("ORDER_1", 1, 50000))
		gw := &stubGateway{confirmErr: &GatewayError{
			Gateway:    "stub",
			StatusCode: 400,
			Body:       []byte(`{"code":"REJECT_CARD_COMPANY","message":"card rejected"}`),
		}}
		svc := newTestService(store, gw)

		result, err := svc.ConfirmPayment(ctx, "ORDER_1", "pk_123", amount)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.NotContains(t, result.Message, "REJECT_CARD_COMPANY")

		stored := store.get("ORDER_1")
		assert.Equal(t, models.PaymentStatusFailed, stored.Status)
		assert.Nil(t, stored.PaymentKey)
		assert.NotEmpty(t, stored.CancelReason)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventFailed}, store.eventTypes("ORDER_1"))
	})

	t.Run("only one of two concurrent confirms wins", func(t *testing.T) {
		store := newMemStore()
		store.seed(pendingPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		var wg sync.WaitGroup
		var successes int32
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := svc.ConfirmPayment(ctx, "ORDER_1", "pk_123", amount)
				if err == nil && result.Success {
					atomic.AddInt32(&successes, 1)
				} else if err != nil {
					assert.True(t, IsPaymentError(err, CodeInvalidStateTransition))
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, successes)
		assert.Equal(t, models.PaymentStatusCompleted, store.get("ORDER_1").Status)
	})
}

func TestCancelPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("full cancellation", func(t *testing.T) {
		store := newMemStore()
		store.seed(completedPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		result, err := svc.CancelPayment(ctx, "ORDER_1", "customer request", nil)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.CancelAmount.Equal(decimal.NewFromInt(50000)))

		stored := store.get("ORDER_1")
		assert.Equal(t, models.PaymentStatusCancelled, stored.Status)
		assert.Equal(t, "customer request", stored.CancelReason)
		assert.Equal(t, []models.PaymentEventType{models.PaymentEventCancelled}, store.eventTypes("ORDER_1"))
	})

	t.Run("partial cancellation", func(t *testing.T) {
		store := newMemStore()
		store.seed(completedPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		partial := decimal.NewFromInt(20000)
		result, err := svc.CancelPayment(ctx, "ORDER_1", "partial refund", &partial)
		require.NoError(t, err)
		assert.True(t, result.CancelAmount.Equal(partial))

		stored := store.get("ORDER_1")
		require.True(t, stored.CancelAmount.Valid)
		assert.True(t, stored.CancelAmount.Decimal.Equal(partial))
	})

	t.Run("cancel amount exceeding the payment is rejected", func(t *testing.T) {
		store := newMemStore()
		store.seed(completedPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		excess := decimal.NewFromInt(60000)
		_, err := svc.CancelPayment(ctx, "ORDER_1", "too much", &excess)
		assert.True(t, IsPaymentError(err, CodeInvalidAmount))
		assert.Equal(t, models.PaymentStatusCompleted, store.get("ORDER_1").Status)
	})

	t.Run("non-positive cancel amount is rejected", func(t *testing.T) {
		store := newMemStore()
		store.seed(completedPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		zero := decimal.Zero
		_, err := svc.CancelPayment(ctx, "ORDER_1", "zero", &zero)
		assert.True(t, IsPaymentError(err, CodeInvalidAmount))
	})

	t.Run("already cancelled", func(t *testing.T) {
		store := newMemStore()
		p := completedPayment("ORDER_1", 1, 50000)
		p.Status = models.PaymentStatusCancelled
		store.seed(p)
		svc := newTestService(store, &stubGateway{})

		_, err := svc.CancelPayment(ctx, "ORDER_1", "again", nil)
		assert.True(t, IsPaymentError(err, CodeAlreadyCancelled))
	})

	t.Run("pending payment cannot be cancelled", func(t *testing.T) {
		store := newMemStore()
		store.seed(pendingPayment("ORDER_1", 1, 50000))
		svc := newTestService(store, &stubGateway{})

		_, err := svc.CancelPayment(ctx, "ORDER_1", "not yet", nil)
		assert.True(t, IsPaymentError(err, CodeInvalidStateTransition))
	})

	t.Run("gateway failure keeps the payment cancellable", func(t *testing.T) {
		store := newMemStore()
		store.seed(completedPayment("ORDER_1", 1, 50000))
		gw := &stubGateway{cancelErr: errors.New("connection reset")}
		svc := newTestService(store, gw)

		result, err := svc.CancelPayment(ctx, "ORDER_1", "customer request", nil)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, models.PaymentStatusCompleted, store.get("ORDER_1").Status)

		// a retry succeeds once the gateway recovers
		gw.cancelErr = nil
		result, err = svc.CancelPayment(ctx, "ORDER_1", "customer request", nil)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, models.PaymentStatusCancelled, store.get("ORDER_1").Status)
	})
}

func TestGetHistory(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	for i := 0; i < 3; i++ {
		p := pendingPayment(fmt.Sprintf("ORDER_%d", i), 1, 1000)
		p.CreatedAt = time.Now().Add(time.Duration(-i) * time.Hour)
		store.seed(p)
	}
	store.seed(pendingPayment("ORDER_OTHER", 2, 1000))
	svc := newTestService(store, &stubGateway{})

	list, err := svc.GetHistory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, list.TotalCount)
	assert.False(t, list.HasMore)
	require.Len(t, list.Payments, 3)
	// newest first
	assert.Equal(t, "ORDER_0", list.Payments[0].OrderID)
	assert.Equal(t, "ORDER_2", list.Payments[2].OrderID)
}

func TestGetDetail(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seed(completedPayment("ORDER_1", 1, 50000))
	svc := newTestService(store, &stubGateway{})

	detail, err := svc.GetDetail(ctx, "ORDER_1")
	require.NoError(t, err)
	assert.Equal(t, "ORDER_1", detail.OrderID)
	assert.Equal(t, "pk_ORDER_1", detail.PaymentKey)

	_, err = svc.GetDetail(ctx, "ORDER_MISSING")
	assert.True(t, IsPaymentError(err, CodePaymentNotFound))
}

func TestExpireStalePayments(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	stale := pendingPayment("ORDER_STALE", 1, 1000)
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	store.seed(stale)

	fresh := pendingPayment("ORDER_FRESH", 1, 1000)
	store.seed(fresh)

	store.seed(completedPayment("ORDER_DONE", 1, 1000))

	svc := newTestService(store, &stubGateway{})

	expired, err := svc.ExpireStalePayments(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	assert.Equal(t, models.PaymentStatusFailed, store.get("ORDER_STALE").Status)
	assert.Equal(t, models.PaymentStatusPending, store.get("ORDER_FRESH").Status)
	assert.Equal(t, models.PaymentStatusCompleted, store.get("ORDER_DONE").Status)
	assert.Equal(t, []models.PaymentEventType{models.PaymentEventExpired}, store.eventTypes("ORDER_STALE"))
}
