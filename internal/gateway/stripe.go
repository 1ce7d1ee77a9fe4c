package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

// StripeConfig holds the API credentials for the token-capture integration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeAdapter implements the token-capture model: the client collects a
// payment token, CreateIntent opens a PaymentIntent and returns its client
// secret, and Verify is a read-only status fetch.
type StripeAdapter struct {
	cfg StripeConfig
	api *client.API
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	// A dedicated client per adapter; nothing reads the package-global key.
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeAdapter{cfg: cfg, api: api}
}

func (a *StripeAdapter) configured() bool {
	return a.cfg.SecretKey != ""
}

// CreateIntent opens a PaymentIntent for the computed total.
func (a *StripeAdapter) CreateIntent(ctx context.Context, intent PaymentIntent) (*ProviderHandle, error) {
	if !a.configured() {
		return nil, fmt.Errorf("stripe: %w", ErrUnconfigured)
	}
	if err := ValidateIntent(intent); err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{
		Params:       stripe.Params{Context: ctx},
		Amount:       stripe.Int64(MinorUnits(intent.Total)),
		Currency:     stripe.String(intent.Currency),
		ReceiptEmail: stripe.String(intent.Shipping.Email),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("item_count", fmt.Sprintf("%d", len(intent.Items)))

	pi, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, stripeRequestError(err)
	}

	return &ProviderHandle{
		TransactionID: pi.ID,
		ClientSecret:  pi.ClientSecret,
	}, nil
}

// Verify fetches current PaymentIntent state. Read-only; safe to call
// repeatedly while the customer completes confirmation client-side.
func (a *StripeAdapter) Verify(ctx context.Context, transactionID string) (*PaymentResult, error) {
	if !a.configured() {
		return nil, fmt.Errorf("stripe: %w", ErrUnconfigured)
	}

	pi, err := a.api.PaymentIntents.Get(transactionID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, stripeRequestError(err)
	}

	result := &PaymentResult{
		TransactionID: pi.ID,
		Metadata:      map[string]string{"status": string(pi.Status)},
	}
	if pi.LatestCharge != nil {
		result.Metadata["charge_id"] = pi.LatestCharge.ID
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Success = true
	case stripe.PaymentIntentStatusCanceled:
		result.Canceled = true
		result.Error = "payment intent canceled"
	default:
		// requires_payment_method, requires_confirmation, requires_action,
		// processing: all non-terminal.
		result.Pending = true
		result.Error = "payment intent in state " + string(pi.Status)
	}
	return result, nil
}

// VerifyWebhook checks the Stripe-Signature header over the raw body.
func (a *StripeAdapter) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("stripe: %w", ErrUnconfigured)
	}

	event, err := webhook.ConstructEvent(payload, signature, a.cfg.WebhookSecret)
	if err != nil {
		return nil, ErrBadSignature
	}

	var object struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil || object.ID == "" {
		return nil, fmt.Errorf("stripe webhook payload: missing object id")
	}

	return &WebhookEvent{Type: string(event.Type), TransactionID: object.ID}, nil
}

func stripeRequestError(err error) error {
	var apiErr *stripe.Error
	if errors.As(err, &apiErr) {
		return &RequestError{
			Gateway: "stripe",
			Status:  apiErr.HTTPStatusCode,
			Body:    apiErr.Msg,
			Err:     err,
		}
	}
	return &RequestError{Gateway: "stripe", Err: err}
}
