package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/atelier/internal/middleware"
	"github.com/example/atelier/internal/storage"
	"github.com/example/atelier/internal/utils"
)

// OrderHandler serves owner-scoped order reads.
type OrderHandler struct {
	store storage.OrderStore
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(store storage.OrderStore) *OrderHandler {
	return &OrderHandler{store: store}
}

// List returns the caller's orders, newest first, optionally filtered by
// status.
func (h *OrderHandler) List(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pagination := utils.ParsePagination(c)
	orders, total, err := h.store.ListByUser(c.Context(), userID, c.Query("status"), pagination.Limit, pagination.Offset)
	if err != nil {
		log.Printf("[Order] list for user %s: %v", userID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not list orders")
	}

	return c.JSON(fiber.Map{
		"orders": orders,
		"total":  total,
		"page":   pagination.Page,
		"limit":  pagination.Limit,
	})
}

// Get returns a single order owned by the caller.
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	order, err := h.store.OrderByID(c.Context(), orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		log.Printf("[Order] load order %s: %v", orderID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not load order")
	}
	if order.UserID != userID {
		return fiber.NewError(fiber.StatusNotFound, "order not found")
	}

	return c.JSON(order)
}
