package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/atelier/internal/config"
	"github.com/example/atelier/internal/gateway"
)

// TaxRate is the flat sales tax applied to every checkout.
const TaxRate = 0.09

// verifyTimeout bounds the blocking provider call behind Verify. A timeout is
// a retryable outcome for the caller, not a payment failure.
const verifyTimeout = 20 * time.Second

// ErrUnknownMethod marks a payment method with no registered adapter. A
// configuration error: fatal for the request, never retried.
var ErrUnknownMethod = errors.New("unknown payment method")

// OrderTotals is the quoted money breakdown for a set of items.
type OrderTotals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// PaymentOrchestrator routes checkout operations to the adapter registered
// for the requested method. It holds no per-payment state, so the polling
// path and the webhook path can call it concurrently for the same
// transaction.
type PaymentOrchestrator struct {
	adapters map[string]gateway.Adapter
}

func NewPaymentOrchestrator(adapters map[string]gateway.Adapter) *PaymentOrchestrator {
	return &PaymentOrchestrator{adapters: adapters}
}

// BuildAdapters wires the three gateway adapters from process configuration.
func BuildAdapters(cfg *config.Config) map[string]gateway.Adapter {
	return map[string]gateway.Adapter{
		gateway.MethodPayPal: gateway.NewPayPalAdapter(gateway.PayPalConfig{
			BaseURL:   cfg.PayPalBaseURL,
			ClientID:  cfg.PayPalClientID,
			Secret:    cfg.PayPalSecret,
			WebhookID: cfg.PayPalWebhookID,
			ReturnURL: cfg.PayPalReturnURL,
			CancelURL: cfg.PayPalCancelURL,
		}),
		gateway.MethodStripe: gateway.NewStripeAdapter(gateway.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		}),
		gateway.MethodCoinbase: gateway.NewCoinbaseAdapter(gateway.CoinbaseConfig{
			BaseURL:       cfg.CoinbaseBaseURL,
			APIKey:        cfg.CoinbaseAPIKey,
			WebhookSecret: cfg.CoinbaseWebhookSecret,
		}),
	}
}

// AdapterFor returns the adapter registered for method.
func (o *PaymentOrchestrator) AdapterFor(method string) (gateway.Adapter, error) {
	adapter, ok := o.adapters[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	return adapter, nil
}

// ProcessPayment creates the provider-side intent for the requested method.
func (o *PaymentOrchestrator) ProcessPayment(ctx context.Context, method string, intent gateway.PaymentIntent) (*gateway.ProviderHandle, error) {
	adapter, err := o.AdapterFor(method)
	if err != nil {
		return nil, err
	}
	return adapter.CreateIntent(ctx, intent)
}

// VerifyPayment queries provider-side payment state, with a bounded timeout
// around the blocking network call.
func (o *PaymentOrchestrator) VerifyPayment(ctx context.Context, method, transactionID string) (*gateway.PaymentResult, error) {
	adapter, err := o.AdapterFor(method)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	return adapter.Verify(ctx, transactionID)
}

// CalculateOrderTotals is the single authority for the tax invariant:
// tax = round(subtotal * TaxRate, 2), total = subtotal + tax, half-even
// rounding throughout. Used both when quoting the customer and when building
// the provider intent so the two can never diverge.
func CalculateOrderTotals(items []gateway.PaymentItem) OrderTotals {
	var subtotal float64
	for _, item := range items {
		subtotal += item.UnitPrice * float64(item.Quantity)
	}
	subtotal = gateway.Round2(subtotal)
	tax := gateway.Round2(subtotal * TaxRate)
	return OrderTotals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    gateway.Round2(subtotal + tax),
	}
}
