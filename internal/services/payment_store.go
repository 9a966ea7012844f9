package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payment_app_echo/internal/models"
)

// ErrDuplicateKey is returned by Create when a unique index rejects the row
var ErrDuplicateKey = errors.New("duplicate key")

// PaymentStore is the persistence contract for payment records. Lookups
// return (nil, nil) when no record exists so callers can distinguish absence
// from storage failure.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	// FindByFingerprint matches the (orderID, userID, amount) triple against
	// records that still block a duplicate create: PENDING and COMPLETED.
	FindByFingerprint(ctx context.Context, orderID string, userID uint, amount decimal.Decimal) (*models.Payment, error)
	ListByUserID(ctx context.Context, userID uint) ([]models.Payment, error)
	ListStalePending(ctx context.Context, olderThan time.Time) ([]models.Payment, error)
	// UpdateIfStatus applies mutate to the record only if its current status
	// equals expected, as one atomic unit. Returns false when no record
	// matched (wrong status or missing), which is how a lost transition race
	// is observed.
	UpdateIfStatus(ctx context.Context, orderID string, expected models.PaymentStatus, mutate func(*models.Payment) error) (bool, error)
	RecordEvent(ctx context.Context, event *models.PaymentEvent) error
}

// GormPaymentStore implements PaymentStore on PostgreSQL
type GormPaymentStore struct {
	db *gorm.DB
}

func NewGormPaymentStore(db *gorm.DB) *GormPaymentStore {
	return &GormPaymentStore{db: db}
}

func (s *GormPaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	err := s.db.WithContext(ctx).Create(payment).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

func (s *GormPaymentStore) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *GormPaymentStore) FindByFingerprint(ctx context.Context, orderID string, userID uint, amount decimal.Decimal) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND user_id = ? AND amount = ?", orderID, userID, amount).
		Where("status IN ?", []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusCompleted}).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *GormPaymentStore) ListByUserID(ctx context.Context, userID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&payments).Error
	return payments, err
}

func (s *GormPaymentStore) ListStalePending(ctx context.Context, olderThan time.Time) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PaymentStatusPending, olderThan).
		Find(&payments).Error
	return payments, err
}

// UpdateIfStatus locks the row matching (orderID, expected) with SELECT FOR
// UPDATE, applies mutate and saves, all inside one transaction. A concurrent
// transition on the same record either waits on the row lock and then misses
// the status predicate, or misses it outright; either way it returns false.
func (s *GormPaymentStore) UpdateIfStatus(ctx context.Context, orderID string, expected models.PaymentStatus, mutate func(*models.Payment) error) (bool, error) {
	updated := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ? AND status = ?", orderID, expected).
			First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := mutate(&payment); err != nil {
			return err
		}
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

func (s *GormPaymentStore) RecordEvent(ctx context.Context, event *models.PaymentEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}
