package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/atelier/internal/models"
)

func pendingOrder(t *testing.T, store *MemoryOrderStore, userID string) *models.Order {
	t.Helper()
	order := &models.Order{UserID: userID, OrderNumber: "ORD-" + uuid.New().String()[:8]}
	require.NoError(t, store.CreatePending(context.Background(), order))
	return order
}

func TestCompleteOrderHasExactlyOneWinner(t *testing.T) {
	store := NewMemoryOrderStore()
	order := pendingOrder(t, store, "user-1")

	const callers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			won, err := store.CompleteOrder(context.Background(), order.ID)
			if err != nil {
				t.Error(err)
				return
			}
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)

	final, err := store.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, final.Status)
	require.NotNil(t, final.CompletedAt)
}

func TestTransitionTerminalOnlyFromPending(t *testing.T) {
	store := NewMemoryOrderStore()
	order := pendingOrder(t, store, "user-1")

	won, err := store.CompleteOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, won)

	moved, err := store.TransitionTerminal(context.Background(), order.ID, models.OrderStatusCancelled)
	require.NoError(t, err)
	require.False(t, moved, "terminal states are sinks")

	final, err := store.OrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, final.Status)
}

func TestAttachTransactionEnforcesUniqueness(t *testing.T) {
	store := NewMemoryOrderStore()
	first := pendingOrder(t, store, "user-1")
	second := pendingOrder(t, store, "user-2")

	require.NoError(t, store.AttachTransaction(context.Background(), first.ID, "txn-1"))

	err := store.AttachTransaction(context.Background(), second.ID, "txn-1")
	require.ErrorIs(t, err, ErrTransactionTaken)

	// Re-attaching the same id to the same order is a no-op, not a conflict.
	require.NoError(t, store.AttachTransaction(context.Background(), first.ID, "txn-1"))

	found, err := store.OrderByTransactionID(context.Background(), "txn-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
}

func TestCreatePendingWithoutTransactionNeverCollides(t *testing.T) {
	store := NewMemoryOrderStore()

	// Orders are inserted before any provider call, so none carries a
	// transaction id yet; the uniqueness guard must not see them as equal.
	first := pendingOrder(t, store, "user-1")
	second := pendingOrder(t, store, "user-2")
	require.NotEqual(t, first.ID, second.ID)

	// A checkout whose provider call failed keeps an empty transaction id in
	// its terminal state; later checkouts must still insert cleanly.
	moved, err := store.TransitionTerminal(context.Background(), first.ID, models.OrderStatusFailed)
	require.NoError(t, err)
	require.True(t, moved)

	third := pendingOrder(t, store, "user-1")
	require.NoError(t, store.AttachTransaction(context.Background(), third.ID, "txn-3"))
}

func TestCreatePendingRejectsDuplicateTransaction(t *testing.T) {
	store := NewMemoryOrderStore()

	first := &models.Order{UserID: "user-1", OrderNumber: "ORD-A", TransactionID: "txn-1"}
	require.NoError(t, store.CreatePending(context.Background(), first))

	dup := &models.Order{UserID: "user-2", OrderNumber: "ORD-B", TransactionID: "txn-1"}
	err := store.CreatePending(context.Background(), dup)
	require.ErrorIs(t, err, ErrTransactionTaken)
}

func TestDecrementStockNeverGoesNegative(t *testing.T) {
	store := NewMemoryOrderStore()
	product := &models.Product{Name: "Wool coat", Stock: 3}
	store.AddProduct(product)

	require.NoError(t, store.DecrementStock(context.Background(), product.ID, 2))
	require.Equal(t, 1, store.Stock(product.ID))

	err := store.DecrementStock(context.Background(), product.ID, 2)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, store.Stock(product.ID))
}

func TestListByUserScopesAndFilters(t *testing.T) {
	store := NewMemoryOrderStore()
	mine := pendingOrder(t, store, "user-1")
	pendingOrder(t, store, "user-2")

	completed := pendingOrder(t, store, "user-1")
	_, err := store.CompleteOrder(context.Background(), completed.ID)
	require.NoError(t, err)

	orders, total, err := store.ListByUser(context.Background(), "user-1", "", 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, orders, 2)

	orders, total, err = store.ListByUser(context.Background(), "user-1", models.OrderStatusPending, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, mine.ID, orders[0].ID)
}

func TestListByUserNewestFirst(t *testing.T) {
	store := NewMemoryOrderStore()
	now := time.Now()

	oldest := &models.Order{UserID: "user-1", OrderNumber: "ORD-OLD", PlacedAt: now.Add(-2 * time.Hour)}
	require.NoError(t, store.CreatePending(context.Background(), oldest))
	newest := &models.Order{UserID: "user-1", OrderNumber: "ORD-NEW", PlacedAt: now}
	require.NoError(t, store.CreatePending(context.Background(), newest))
	middle := &models.Order{UserID: "user-1", OrderNumber: "ORD-MID", PlacedAt: now.Add(-time.Hour)}
	require.NoError(t, store.CreatePending(context.Background(), middle))

	orders, _, err := store.ListByUser(context.Background(), "user-1", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, newest.ID, orders[0].ID)
	require.Equal(t, middle.ID, orders[1].ID)
	require.Equal(t, oldest.ID, orders[2].ID)
}

func TestCancelStaleOnlyTouchesOldPending(t *testing.T) {
	store := NewMemoryOrderStore()

	stale := &models.Order{UserID: "user-1", OrderNumber: "ORD-STALE", PlacedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, store.CreatePending(context.Background(), stale))

	fresh := pendingOrder(t, store, "user-1")

	done := &models.Order{UserID: "user-1", OrderNumber: "ORD-DONE", PlacedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, store.CreatePending(context.Background(), done))
	_, err := store.CompleteOrder(context.Background(), done.ID)
	require.NoError(t, err)

	count, err := store.CancelStale(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	got, err := store.OrderByID(context.Background(), stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCancelled, got.Status)

	got, err = store.OrderByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, got.Status)

	got, err = store.OrderByID(context.Background(), done.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, got.Status)
}
