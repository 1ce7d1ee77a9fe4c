package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/atelier/internal/models"
)

// MemoryOrderStore is an in-memory OrderStore with the same conditional-write
// semantics as the Postgres implementation. Used by tests and local runs
// without a database.
type MemoryOrderStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*models.Order
	byTxn    map[string]uuid.UUID
	products map[uuid.UUID]*models.Product
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders:   make(map[uuid.UUID]*models.Order),
		byTxn:    make(map[string]uuid.UUID),
		products: make(map[uuid.UUID]*models.Product),
	}
}

// AddProduct seeds a product row.
func (s *MemoryOrderStore) AddProduct(product *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	s.products[product.ID] = product
}

// Stock reports a product's current counter.
func (s *MemoryOrderStore) Stock(productID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		return p.Stock
	}
	return 0
}

func (s *MemoryOrderStore) CreatePending(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The transaction-id index is partial: empty ids coexist freely, only a
	// non-empty id already held by another order is a conflict.
	if order.TransactionID != "" {
		if existing, ok := s.byTxn[order.TransactionID]; ok && existing != order.ID {
			return ErrTransactionTaken
		}
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Status = models.OrderStatusPending
	if order.PlacedAt.IsZero() {
		order.PlacedAt = time.Now()
	}
	clone := *order
	s.orders[order.ID] = &clone
	if order.TransactionID != "" {
		s.byTxn[order.TransactionID] = order.ID
	}
	return nil
}

func (s *MemoryOrderStore) AttachTransaction(ctx context.Context, orderID uuid.UUID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byTxn[transactionID]; ok && existing != orderID {
		return ErrTransactionTaken
	}
	order, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	order.TransactionID = transactionID
	s.byTxn[transactionID] = orderID
	return nil
}

func (s *MemoryOrderStore) OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *MemoryOrderStore) OrderByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byTxn[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.orders[id]
	return &clone, nil
}

func (s *MemoryOrderStore) ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]models.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Order
	for _, order := range s.orders {
		if order.UserID != userID {
			continue
		}
		if status != "" && order.Status != status {
			continue
		}
		matched = append(matched, *order)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PlacedAt.After(matched[j].PlacedAt)
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *MemoryOrderStore) CompleteOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if order.Status != models.OrderStatusPending {
		return false, nil
	}
	now := time.Now()
	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now
	return true, nil
}

func (s *MemoryOrderStore) TransitionTerminal(ctx context.Context, orderID uuid.UUID, status string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = status
	return true, nil
}

func (s *MemoryOrderStore) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok || product.Stock < quantity {
		return ErrInsufficientStock
	}
	product.Stock -= quantity
	return nil
}

func (s *MemoryOrderStore) CancelStale(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, order := range s.orders {
		if order.Status == models.OrderStatusPending && order.PlacedAt.Before(before) {
			order.Status = models.OrderStatusCancelled
			count++
		}
	}
	return count, nil
}
