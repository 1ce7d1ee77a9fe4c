package models

import (
	"time"

	"github.com/google/uuid"
)

// Order status values. COMPLETED, FAILED and CANCELLED are sink states; the
// only writes out of PENDING go through the finalizer's conditional update.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusFailed    = "FAILED"
	OrderStatusCancelled = "CANCELLED"
)

// TerminalStatus reports whether status is a sink state.
func TerminalStatus(status string) bool {
	switch status {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

type Order struct {
	BaseModel
	UserID        string `gorm:"index" json:"user_id"`
	OrderNumber   string `gorm:"uniqueIndex" json:"order_number"`
	Status        string `gorm:"index" json:"status"`
	PaymentMethod string `json:"payment_method"`

	// Gateway-assigned id, set when the provider intent is created. The unique
	// index is the idempotency guard the finalizer relies on; it is partial so
	// orders awaiting attachment (empty id) never collide with each other.
	TransactionID string `gorm:"index:idx_orders_transaction_id,unique,where:transaction_id <> ''" json:"transaction_id"`

	Subtotal    float64 `json:"subtotal"`
	Tax         float64 `json:"tax"`
	TotalAmount float64 `json:"total_amount"`
	Currency    string  `json:"currency"`

	ShippingName    string `json:"shipping_name"`
	ShippingEmail   string `json:"shipping_email"`
	ShippingAddress string `json:"shipping_address"`
	ShippingCity    string `json:"shipping_city"`
	ShippingZip     string `json:"shipping_zip"`
	ShippingPhone   string `json:"shipping_phone"`

	PlacedAt    time.Time  `json:"placed_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Items []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	ProductID   *uuid.UUID `gorm:"type:uuid" json:"product_id"`
	ProductName string     `json:"product_name"`
	Quantity    int        `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	Size        string     `json:"size"`
	Color       string     `json:"color"`
	LineTotal   float64    `json:"line_total"`
}
