package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Payment method tags. One adapter per tag, selected through the
// orchestrator's lookup table.
const (
	MethodPayPal   = "paypal"
	MethodStripe   = "stripe"
	MethodCoinbase = "coinbase"
)

// PaymentItem is one line of a checkout. Immutable once an intent is created.
type PaymentItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Size      string  `json:"size"`
	Color     string  `json:"color"`
}

// ShippingDetails are free-form strings validated upstream.
type ShippingDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Phone   string `json:"phone,omitempty"`
}

// PaymentIntent is the request-scoped checkout snapshot handed to an adapter.
type PaymentIntent struct {
	Items    []PaymentItem   `json:"items"`
	Shipping ShippingDetails `json:"shipping"`
	Subtotal float64         `json:"subtotal"`
	Tax      float64         `json:"tax"`
	Total    float64         `json:"total"`
	Currency string          `json:"currency"`
}

// ProviderHandle is whatever the client needs to continue payment at the
// provider: an approval URL, a client secret, or a hosted page URL plus code.
type ProviderHandle struct {
	TransactionID string `json:"transaction_id"`
	ApprovalURL   string `json:"approval_url,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
	HostedURL     string `json:"hosted_url,omitempty"`
	Code          string `json:"code,omitempty"`
}

// PaymentResult is the normalized outcome of a Verify call. A not-yet-paid
// intent yields Success=false, Pending=true and no error: that is an expected
// state the caller polls on, not a failure. Results for the same terminal
// transaction id are idempotently consistent across calls.
type PaymentResult struct {
	Success       bool              `json:"success"`
	Pending       bool              `json:"pending,omitempty"`
	Canceled      bool              `json:"canceled,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Error         string            `json:"error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// WebhookEvent is the authenticated payload of a provider notification.
// Only fields of a verified event may be trusted.
type WebhookEvent struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
}

// Adapter is the uniform contract over the three integration models
// (redirect capture, token capture, hosted page). Callers never learn which
// model is in play; all three degrade to "call Verify until success or a
// terminal failure".
type Adapter interface {
	// CreateIntent constructs the provider-side resource for the intent.
	CreateIntent(ctx context.Context, intent PaymentIntent) (*ProviderHandle, error)

	// Verify queries current provider-side state for a transaction. For the
	// redirect-capture model this call performs the capture; for the others it
	// is read-only and safe to call repeatedly.
	Verify(ctx context.Context, transactionID string) (*PaymentResult, error)

	// VerifyWebhook authenticates a raw payload against the signature header
	// before any field is trusted. Returns ErrBadSignature on mismatch.
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// ErrUnconfigured is returned by CreateIntent when required credentials are
// absent. Fatal for the request, never retried.
var ErrUnconfigured = errors.New("gateway is not configured")

// ErrBadSignature marks a webhook whose signature did not verify. Security
// relevant; never downgraded to an ordinary validation error.
var ErrBadSignature = errors.New("webhook signature verification failed")

// ValidationError marks a malformed intent (non-positive total, empty items).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid payment intent: " + e.Reason
}

// RequestError wraps transport failures and provider 4xx/5xx responses.
// Retryable by the caller with backoff.
type RequestError struct {
	Gateway string
	Status  int
	Body    string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Gateway, e.Err)
	}
	return fmt.Sprintf("%s request failed: status %d, body: %s", e.Gateway, e.Status, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ValidateIntent applies the checks shared by every adapter.
func ValidateIntent(intent PaymentIntent) error {
	if len(intent.Items) == 0 {
		return &ValidationError{Reason: "empty item list"}
	}
	if intent.Total <= 0 {
		return &ValidationError{Reason: "non-positive total"}
	}
	for _, item := range intent.Items {
		if item.Quantity <= 0 {
			return &ValidationError{Reason: "non-positive quantity for " + item.Name}
		}
		if item.UnitPrice < 0 {
			return &ValidationError{Reason: "negative unit price for " + item.Name}
		}
	}
	return nil
}
