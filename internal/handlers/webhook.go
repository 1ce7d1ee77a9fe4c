package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/atelier/internal/gateway"
	"github.com/example/atelier/internal/services"
	"github.com/example/atelier/internal/storage"
)

// WebhookHandler receives provider notifications. A webhook is only a hint
// that state changed: after the signature checks out, the order is finalized
// from a fresh provider verification, never from the notification body.
type WebhookHandler struct {
	store        storage.OrderStore
	orchestrator *services.PaymentOrchestrator
	finalizer    *services.OrderFinalizer
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(store storage.OrderStore, orchestrator *services.PaymentOrchestrator, finalizer *services.OrderFinalizer) *WebhookHandler {
	return &WebhookHandler{store: store, orchestrator: orchestrator, finalizer: finalizer}
}

// Receive handles POST /api/webhooks/:gateway.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	method := c.Params("gateway")
	adapter, err := h.orchestrator.AdapterFor(method)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "unknown gateway")
	}

	payload := c.Body()
	event, err := adapter.VerifyWebhook(payload, webhookSignature(c, method))
	if err != nil {
		if errors.Is(err, gateway.ErrBadSignature) {
			log.Printf("[Webhook] %s signature rejected", method)
			return fiber.NewError(fiber.StatusUnauthorized, "signature verification failed")
		}
		// A transport failure while verifying (PayPal's remote signature
		// check) is not a rejection: answer 5xx so the provider redelivers.
		var requestErr *gateway.RequestError
		if errors.As(err, &requestErr) {
			log.Printf("[Webhook] %s verification unavailable: %v", method, err)
			return fiber.NewError(fiber.StatusBadGateway, "webhook verification unavailable")
		}
		log.Printf("[Webhook] %s verification error: %v", method, err)
		return fiber.NewError(fiber.StatusBadRequest, "webhook verification failed")
	}

	if event.TransactionID == "" {
		// Authenticated but not about a payment we track.
		return c.JSON(fiber.Map{"received": true})
	}

	order, err := h.store.OrderByTransactionID(c.Context(), event.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("[Webhook] %s event %s references unknown transaction %s", method, event.Type, event.TransactionID)
			return c.JSON(fiber.Map{"received": true})
		}
		log.Printf("[Webhook] load order for transaction %s: %v", event.TransactionID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not load order")
	}

	result, err := h.orchestrator.VerifyPayment(c.Context(), order.PaymentMethod, event.TransactionID)
	if err != nil {
		log.Printf("[Webhook] verify %s/%s: %v", order.PaymentMethod, event.TransactionID, err)
		return fiber.NewError(fiber.StatusBadGateway, "payment verification failed")
	}

	if _, err := h.finalizer.Finalize(c.Context(), order, result); err != nil {
		log.Printf("[Webhook] finalize order %s: %v", order.ID, err)
		return fiber.NewError(fiber.StatusInternalServerError, "could not finalize order")
	}

	return c.JSON(fiber.Map{"received": true})
}

// webhookSignature extracts the per-provider signature material. PayPal
// spreads it across five transmission headers, which are packed into one JSON
// string for the adapter.
func webhookSignature(c *fiber.Ctx, method string) string {
	switch method {
	case gateway.MethodStripe:
		return c.Get("Stripe-Signature")
	case gateway.MethodCoinbase:
		return c.Get("X-CC-Webhook-Signature")
	case gateway.MethodPayPal:
		bundle, _ := json.Marshal(map[string]string{
			"transmission_id":   c.Get("Paypal-Transmission-Id"),
			"transmission_time": c.Get("Paypal-Transmission-Time"),
			"transmission_sig":  c.Get("Paypal-Transmission-Sig"),
			"cert_url":          c.Get("Paypal-Cert-Url"),
			"auth_algo":         c.Get("Paypal-Auth-Algo"),
		})
		return string(bundle)
	}
	return ""
}
