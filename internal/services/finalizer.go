package services

import (
	"context"
	"fmt"
	"log"

	"github.com/example/atelier/internal/gateway"
	"github.com/example/atelier/internal/messaging"
	"github.com/example/atelier/internal/models"
	"github.com/example/atelier/internal/storage"
)

// ConfirmationPublisher enqueues the customer-facing order confirmation.
type ConfirmationPublisher interface {
	PublishOrderConfirmation(confirmation messaging.OrderConfirmation) error
}

// AdminNotifier tells operations about a completed payment.
type AdminNotifier interface {
	NotifyOrderCompleted(order *models.Order) error
}

// OrderFinalizer owns every write to order status. Both completion paths
// (webhook delivery and client poll) funnel through Finalize, which is safe
// to call any number of times, concurrently, for the same transaction: the
// store's conditional write picks exactly one winner and only the winner
// performs side effects.
type OrderFinalizer struct {
	store     storage.OrderStore
	publisher ConfirmationPublisher
	admin     AdminNotifier
}

func NewOrderFinalizer(store storage.OrderStore, publisher ConfirmationPublisher, admin AdminNotifier) *OrderFinalizer {
	return &OrderFinalizer{store: store, publisher: publisher, admin: admin}
}

// Finalize applies a verified payment result to its order and returns the
// resulting order snapshot.
//
// Pending results leave the order untouched. Terminal failures transition
// PENDING -> FAILED/CANCELLED. A successful result transitions
// PENDING -> COMPLETED through a single conditional write; losers of that
// race observe the completed order and perform no side effects. Stock and
// notification failures after the status commit are logged for
// reconciliation and never surface as payment failures.
func (f *OrderFinalizer) Finalize(ctx context.Context, order *models.Order, result *gateway.PaymentResult) (*models.Order, error) {
	if order == nil || result == nil {
		return nil, fmt.Errorf("finalize: order and result are required")
	}

	// Still awaiting the provider: not a failure, nothing to transition.
	if result.Pending {
		return f.store.OrderByID(ctx, order.ID)
	}

	if !result.Success {
		status := models.OrderStatusFailed
		if result.Canceled {
			status = models.OrderStatusCancelled
		}
		if _, err := f.store.TransitionTerminal(ctx, order.ID, status); err != nil {
			return nil, err
		}
		return f.store.OrderByID(ctx, order.ID)
	}

	won, err := f.store.CompleteOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	current, err := f.store.OrderByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if !won {
		// Second arrival, whether webhook-after-poll or poll-after-webhook:
		// the order is already terminal, so this call is a pure no-op.
		return current, nil
	}

	f.decrementStock(ctx, current)
	f.notify(current)

	return current, nil
}

func (f *OrderFinalizer) decrementStock(ctx context.Context, order *models.Order) {
	for _, item := range order.Items {
		if item.ProductID == nil {
			continue
		}
		if err := f.store.DecrementStock(ctx, *item.ProductID, item.Quantity); err != nil {
			// The payment stands; inventory correction is an out-of-band
			// remediation.
			log.Printf("[Finalizer] stock decrement failed for order %s product %s: %v (reconciliation required)",
				order.ID, *item.ProductID, err)
		}
	}
}

func (f *OrderFinalizer) notify(order *models.Order) {
	if f.publisher != nil {
		items := make([]messaging.ConfirmationItem, 0, len(order.Items))
		for _, item := range order.Items {
			items = append(items, messaging.ConfirmationItem{
				Name:      item.ProductName,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
				Size:      item.Size,
				Color:     item.Color,
			})
		}
		confirmation := messaging.OrderConfirmation{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			CustomerName:    order.ShippingName,
			CustomerEmail:   order.ShippingEmail,
			Total:           order.TotalAmount,
			Currency:        order.Currency,
			Items:           items,
			ShippingAddress: fmt.Sprintf("%s, %s %s", order.ShippingAddress, order.ShippingCity, order.ShippingZip),
		}
		if err := f.publisher.PublishOrderConfirmation(confirmation); err != nil {
			log.Printf("[Finalizer] confirmation publish failed for order %s: %v", order.ID, err)
		}
	}

	if f.admin != nil {
		go func(snapshot models.Order) {
			if err := f.admin.NotifyOrderCompleted(&snapshot); err != nil {
				log.Printf("[Finalizer] admin notification failed for order %s: %v", snapshot.ID, err)
			}
		}(*order)
	}
}
