package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/atelier/internal/models"
)

// GormOrderStore is the Postgres-backed OrderStore. Conditional transitions
// rely on single UPDATE statements with a status predicate; RowsAffected is
// the compare-and-swap outcome.
type GormOrderStore struct {
	db *gorm.DB
}

func NewGormOrderStore(db *gorm.DB) *GormOrderStore {
	return &GormOrderStore{db: db}
}

func (s *GormOrderStore) CreatePending(ctx context.Context, order *models.Order) error {
	order.Status = models.OrderStatusPending
	if order.PlacedAt.IsZero() {
		order.PlacedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(order).Error
}

func (s *GormOrderStore) AttachTransaction(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("transaction_id", transactionID).Error
	if err != nil && isUniqueViolation(err) {
		return ErrTransactionTaken
	}
	return err
}

func (s *GormOrderStore) OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *GormOrderStore) OrderByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").
		First(&order, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *GormOrderStore) ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("placed_at desc").
		Limit(limit).Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *GormOrderStore) CompleteOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Updates(map[string]any{
			"status":       models.OrderStatusCompleted,
			"completed_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormOrderStore) TransitionTerminal(ctx context.Context, orderID uuid.UUID, status string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormOrderStore) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	res := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (s *GormOrderStore) CancelStale(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND placed_at < ?", models.OrderStatusPending, before).
		Update("status", models.OrderStatusCancelled)
	return res.RowsAffected, res.Error
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "23505")
}
