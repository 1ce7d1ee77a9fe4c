package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/atelier/internal/gateway"
	"github.com/example/atelier/internal/middleware"
	"github.com/example/atelier/internal/models"
	"github.com/example/atelier/internal/services"
	"github.com/example/atelier/internal/storage"
)

// PaymentHandler manages checkout endpoints: intent creation and status
// polling.
type PaymentHandler struct {
	store        storage.OrderStore
	orchestrator *services.PaymentOrchestrator
	finalizer    *services.OrderFinalizer
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(store storage.OrderStore, orchestrator *services.PaymentOrchestrator, finalizer *services.OrderFinalizer) *PaymentHandler {
	return &PaymentHandler{store: store, orchestrator: orchestrator, finalizer: finalizer}
}

type intentItemRequest struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Size      string  `json:"size"`
	Color     string  `json:"color"`
}

type intentShippingRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Phone   string `json:"phone"`
}

type createIntentRequest struct {
	PaymentMethod string                `json:"payment_method"`
	Currency      string                `json:"currency"`
	Items         []intentItemRequest   `json:"items"`
	Shipping      intentShippingRequest `json:"shipping"`
}

// CreateIntent quotes the order, persists it as PENDING and creates the
// provider-side payment resource.
func (h *PaymentHandler) CreateIntent(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Items) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "order must contain at least one item")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	items := make([]gateway.PaymentItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, gateway.PaymentItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Size:      item.Size,
			Color:     item.Color,
		})
	}

	totals := services.CalculateOrderTotals(items)

	order := models.Order{
		UserID:        userID,
		OrderNumber:   newOrderNumber(),
		Status:        models.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		TotalAmount:   totals.Total,
		Currency:      currency,

		ShippingName:    req.Shipping.Name,
		ShippingEmail:   req.Shipping.Email,
		ShippingAddress: req.Shipping.Address,
		ShippingCity:    req.Shipping.City,
		ShippingZip:     req.Shipping.Zip,
		ShippingPhone:   req.Shipping.Phone,

		PlacedAt: time.Now(),
	}
	for _, item := range items {
		orderItem := models.OrderItem{
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Size:        item.Size,
			Color:       item.Color,
			LineTotal:   gateway.Round2(item.UnitPrice * float64(item.Quantity)),
		}
		if productID, err := uuid.Parse(item.ProductID); err == nil {
			orderItem.ProductID = &productID
		}
		order.Items = append(order.Items, orderItem)
	}

	intent := gateway.PaymentIntent{
		Items: items,
		Shipping: gateway.ShippingDetails{
			Name:    req.Shipping.Name,
			Email:   req.Shipping.Email,
			Address: req.Shipping.Address,
			City:    req.Shipping.City,
			Zip:     req.Shipping.Zip,
			Phone:   req.Shipping.Phone,
		},
		Subtotal: totals.Subtotal,
		Tax:      totals.Tax,
		Total:    totals.Total,
		Currency: currency,
	}

	// Reject malformed intents before persisting anything.
	if err := gateway.ValidateIntent(intent); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.store.CreatePending(c.Context(), &order); err != nil {
		log.Printf("[Payment] create pending order: %v", err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not create order")
	}

	handle, err := h.orchestrator.ProcessPayment(c.Context(), req.PaymentMethod, intent)
	if err != nil {
		// The provider never saw a usable intent, so the order cannot
		// complete; close it out rather than leave it PENDING forever.
		if _, terr := h.store.TransitionTerminal(c.Context(), order.ID, models.OrderStatusFailed); terr != nil {
			log.Printf("[Payment] fail pending order %s: %v", order.ID, terr)
		}
		return intentError(err)
	}

	if err := h.store.AttachTransaction(c.Context(), order.ID, handle.TransactionID); err != nil {
		if errors.Is(err, storage.ErrTransactionTaken) {
			return fiber.NewError(fiber.StatusConflict, "transaction already attached to another order")
		}
		log.Printf("[Payment] attach transaction %s to order %s: %v", handle.TransactionID, order.ID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not record transaction")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       models.OrderStatusPending,
		"totals":       totals,
		"payment":      handle,
	})
}

// Status reports provider-side payment state for a transaction, finalizing
// the order when the state is terminal. Always 200 for a known transaction:
// a still-pending payment is an answer, not an error.
func (h *PaymentHandler) Status(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	transactionID := c.Params("transactionId")
	order, err := h.store.OrderByTransactionID(c.Context(), transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "transaction not found")
		}
		log.Printf("[Payment] load order for transaction %s: %v", transactionID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not load order")
	}
	if order.UserID != userID {
		return fiber.NewError(fiber.StatusNotFound, "transaction not found")
	}

	// Terminal orders never change again; skip the provider round trip.
	if models.TerminalStatus(order.Status) {
		return c.JSON(fiber.Map{
			"order":  order,
			"result": resultForTerminal(order),
		})
	}

	result, err := h.orchestrator.VerifyPayment(c.Context(), order.PaymentMethod, transactionID)
	if err != nil {
		log.Printf("[Payment] verify %s/%s: %v", order.PaymentMethod, transactionID, err)
		return fiber.NewError(fiber.StatusBadGateway, "payment verification failed")
	}

	finalized, err := h.finalizer.Finalize(c.Context(), order, result)
	if err != nil {
		log.Printf("[Payment] finalize order %s: %v", order.ID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not finalize order")
	}

	return c.JSON(fiber.Map{
		"order":  finalized,
		"result": result,
	})
}

// resultForTerminal synthesizes the verify result an already-finalized order
// would report, so repeat polls stay consistent without hitting the provider.
func resultForTerminal(order *models.Order) *gateway.PaymentResult {
	switch order.Status {
	case models.OrderStatusCompleted:
		return &gateway.PaymentResult{Success: true, TransactionID: order.TransactionID}
	case models.OrderStatusCancelled:
		return &gateway.PaymentResult{Canceled: true, TransactionID: order.TransactionID, Error: "payment cancelled"}
	default:
		return &gateway.PaymentResult{TransactionID: order.TransactionID, Error: "payment failed"}
	}
}

func intentError(err error) error {
	var validation *gateway.ValidationError
	switch {
	case errors.Is(err, services.ErrUnknownMethod):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validation):
		return fiber.NewError(fiber.StatusBadRequest, validation.Error())
	case errors.Is(err, gateway.ErrUnconfigured):
		return fiber.NewError(fiber.StatusFailedDependency, "payment method is not configured")
	default:
		log.Printf("[Payment] provider intent: %v", err)
		return fiber.NewError(fiber.StatusBadGateway, "payment provider unavailable")
	}
}

func newOrderNumber() string {
	return fmt.Sprintf("ORD-%s", strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12]))
}
