package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/atelier/internal/models"
)

var (
	// ErrNotFound is returned when an order lookup matches nothing.
	ErrNotFound = errors.New("order not found")

	// ErrInsufficientStock is returned when a decrement would drive a stock
	// counter negative. Surfaced as a reconciliation issue, never a payment
	// failure.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrTransactionTaken is returned when a transaction id is already
	// attached to another order.
	ErrTransactionTaken = errors.New("transaction id already attached to another order")
)

// OrderStore is the order-storage collaborator. The status field and the
// stock counters are the only shared mutable state in the system, and both
// are reachable only through the atomic conditional operations below; no
// read-modify-write path exists.
type OrderStore interface {
	// CreatePending persists a new order in PENDING state with its items.
	CreatePending(ctx context.Context, order *models.Order) error

	// AttachTransaction records the gateway transaction id on a pending
	// order. The unique constraint on transaction_id is enforced here.
	AttachTransaction(ctx context.Context, orderID uuid.UUID, transactionID string) error

	OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	OrderByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]models.Order, int64, error)

	// CompleteOrder transitions PENDING -> COMPLETED as one conditional
	// write. Returns true only for the single caller whose write took
	// effect; false means the order was no longer PENDING.
	CompleteOrder(ctx context.Context, orderID uuid.UUID) (bool, error)

	// TransitionTerminal transitions PENDING -> FAILED or CANCELLED with the
	// same conditional-write semantics. A no-op on already-terminal orders.
	TransitionTerminal(ctx context.Context, orderID uuid.UUID, status string) (bool, error)

	// DecrementStock subtracts quantity from a product's stock counter as a
	// single conditional update.
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error

	// CancelStale transitions orders still PENDING since before the cutoff to
	// CANCELLED. Provided for an out-of-band expiry sweep; the core itself
	// never assumes a bounded time to completion.
	CancelStale(ctx context.Context, before time.Time) (int64, error)
}
