package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CoinbaseConfig holds Coinbase Commerce credentials for the hosted-page
// integration.
type CoinbaseConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
}

// CoinbaseAdapter implements the hosted-page model: CreateIntent builds a
// charge and returns its hosted payment URL, the customer pays there, and
// completion is learned later through Verify polling or the webhook.
type CoinbaseAdapter struct {
	cfg    CoinbaseConfig
	client *http.Client
}

func NewCoinbaseAdapter(cfg CoinbaseConfig) *CoinbaseAdapter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CoinbaseAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *CoinbaseAdapter) configured() bool {
	return a.cfg.APIKey != ""
}

func (a *CoinbaseAdapter) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("coinbase request marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("coinbase request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CC-Api-Key", a.cfg.APIKey)
	req.Header.Set("X-CC-Version", "2018-03-22")

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, &RequestError{Gateway: "coinbase", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, nil
}

type coinbaseCharge struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	HostedURL string `json:"hosted_url"`
	Timeline  []struct {
		Status string `json:"status"`
	} `json:"timeline"`
	Payments []struct {
		Network       string `json:"network"`
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	} `json:"payments"`
}

type coinbaseChargeEnvelope struct {
	Data coinbaseCharge `json:"data"`
}

// CreateIntent creates a charge; the charge code doubles as the transaction
// id since the hosted flow assigns no capture id before completion.
func (a *CoinbaseAdapter) CreateIntent(ctx context.Context, intent PaymentIntent) (*ProviderHandle, error) {
	if !a.configured() {
		return nil, fmt.Errorf("coinbase: %w", ErrUnconfigured)
	}
	if err := ValidateIntent(intent); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(intent.Items))
	for _, item := range intent.Items {
		names = append(names, item.Name)
	}

	payload := map[string]any{
		"name":         "Order for " + intent.Shipping.Name,
		"description":  strings.Join(names, ", "),
		"pricing_type": "fixed_price",
		"local_price": map[string]string{
			"amount":   AmountString(intent.Total),
			"currency": intent.Currency,
		},
		"metadata": map[string]string{
			"customer_email": intent.Shipping.Email,
		},
	}

	status, body, err := a.do(ctx, http.MethodPost, "/charges", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &RequestError{Gateway: "coinbase", Status: status, Body: string(body)}
	}

	var envelope coinbaseChargeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("coinbase charge unmarshal: %w", err)
	}

	return &ProviderHandle{
		TransactionID: envelope.Data.Code,
		HostedURL:     envelope.Data.HostedURL,
		Code:          envelope.Data.Code,
	}, nil
}

// Verify reads the charge timeline. Read-only; a charge awaiting payment
// stays a pending result however many times it is polled.
func (a *CoinbaseAdapter) Verify(ctx context.Context, transactionID string) (*PaymentResult, error) {
	if !a.configured() {
		return nil, fmt.Errorf("coinbase: %w", ErrUnconfigured)
	}

	status, body, err := a.do(ctx, http.MethodGet, "/charges/"+transactionID, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &RequestError{Gateway: "coinbase", Status: status, Body: string(body)}
	}

	var envelope coinbaseChargeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("coinbase charge unmarshal: %w", err)
	}
	charge := envelope.Data

	result := &PaymentResult{
		TransactionID: charge.Code,
		Metadata:      map[string]string{},
	}
	for _, p := range charge.Payments {
		result.Metadata["network"] = p.Network
		result.Metadata["onchain_transaction_id"] = p.TransactionID
	}

	latest := "NEW"
	if len(charge.Timeline) > 0 {
		latest = charge.Timeline[len(charge.Timeline)-1].Status
	}
	result.Metadata["status"] = latest

	switch latest {
	case "COMPLETED", "RESOLVED":
		result.Success = true
	case "CANCELED", "EXPIRED":
		result.Canceled = true
		result.Error = "charge " + strings.ToLower(latest)
	default:
		// NEW, PENDING, UNRESOLVED: keep polling.
		result.Pending = true
		result.Error = "charge in state " + latest
	}
	return result, nil
}

type coinbaseWebhookEnvelope struct {
	Event struct {
		Type string `json:"type"`
		Data struct {
			Code string `json:"code"`
		} `json:"data"`
	} `json:"event"`
}

// VerifyWebhook checks the X-CC-Webhook-Signature HMAC over the raw body.
// The raw bytes are signed, never a re-serialized form.
func (a *CoinbaseAdapter) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if a.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("coinbase: %w", ErrUnconfigured)
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, provided) {
		return nil, ErrBadSignature
	}

	var envelope coinbaseWebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("coinbase webhook unmarshal: %w", err)
	}
	if envelope.Event.Data.Code == "" {
		return nil, fmt.Errorf("coinbase webhook payload: missing charge code")
	}

	return &WebhookEvent{
		Type:          envelope.Event.Type,
		TransactionID: envelope.Event.Data.Code,
	}, nil
}
