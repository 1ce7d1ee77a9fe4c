package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const paypalTokenLeeway = 30 * time.Second

// PayPalConfig holds the merchant credentials for the redirect/order-capture
// integration.
type PayPalConfig struct {
	BaseURL   string
	ClientID  string
	Secret    string
	WebhookID string
	ReturnURL string
	CancelURL string
}

// PayPalAdapter implements the redirect/order-capture model: CreateIntent
// builds a provider order and hands back the approval link, Verify performs
// the capture once the buyer has approved.
type PayPalAdapter struct {
	cfg    PayPalConfig
	client *http.Client

	// Access token cache guarded by a mutex so concurrent requests reuse it.
	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalAdapter(cfg PayPalConfig) *PayPalAdapter {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &PayPalAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *PayPalAdapter) configured() bool {
	return a.cfg.ClientID != "" && a.cfg.Secret != ""
}

type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *PayPalAdapter) accessToken(ctx context.Context, force bool) (string, error) {
	if !force {
		a.tokenMu.RLock()
		if a.token != "" && time.Now().Add(paypalTokenLeeway).Before(a.tokenExpiry) {
			t := a.token
			a.tokenMu.RUnlock()
			return t, nil
		}
		a.tokenMu.RUnlock()
	}

	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	// Check again in case another goroutine refreshed while we waited.
	if !force && a.token != "" && time.Now().Add(paypalTokenLeeway).Before(a.tokenExpiry) {
		return a.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal token request build: %w", err)
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &RequestError{Gateway: "paypal", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RequestError{Gateway: "paypal", Status: resp.StatusCode, Body: string(body)}
	}

	var tok paypalTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("paypal token unmarshal: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}

	a.token = tok.AccessToken
	if tok.ExpiresIn > 0 {
		a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	} else {
		a.tokenExpiry = time.Now().Add(5 * time.Minute)
	}

	return a.token, nil
}

// do performs an authenticated API call, retrying once on 401 with a fresh
// token.
func (a *PayPalAdapter) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	build := func(token string) (*http.Request, error) {
		var bodyReader io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("paypal request marshal: %w", err)
			}
			bodyReader = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("paypal request build: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}

	token, err := a.accessToken(ctx, false)
	if err != nil {
		return 0, nil, err
	}

	req, err := build(token)
	if err != nil {
		return 0, nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, &RequestError{Gateway: "paypal", Err: err}
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return resp.StatusCode, respBody, nil
	}

	// Token likely expired; refresh and retry once.
	token, err = a.accessToken(ctx, true)
	if err != nil {
		return 0, nil, err
	}
	req, err = build(token)
	if err != nil {
		return 0, nil, err
	}
	resp, err = a.client.Do(req)
	if err != nil {
		return 0, nil, &RequestError{Gateway: "paypal", Err: err}
	}
	defer resp.Body.Close()
	respBody, _ = io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, nil
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// CreateIntent creates a provider-side order and returns its approval link.
func (a *PayPalAdapter) CreateIntent(ctx context.Context, intent PaymentIntent) (*ProviderHandle, error) {
	if !a.configured() {
		return nil, fmt.Errorf("paypal: %w", ErrUnconfigured)
	}
	if err := ValidateIntent(intent); err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(intent.Items))
	for _, item := range intent.Items {
		items = append(items, map[string]any{
			"name":     item.Name,
			"quantity": fmt.Sprintf("%d", item.Quantity),
			"unit_amount": map[string]string{
				"currency_code": intent.Currency,
				"value":         AmountString(item.UnitPrice),
			},
		})
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"items": items,
			"amount": map[string]any{
				"currency_code": intent.Currency,
				"value":         AmountString(intent.Total),
				"breakdown": map[string]any{
					"item_total": map[string]string{
						"currency_code": intent.Currency,
						"value":         AmountString(intent.Subtotal),
					},
					"tax_total": map[string]string{
						"currency_code": intent.Currency,
						"value":         AmountString(intent.Tax),
					},
				},
			},
		}},
		"application_context": map[string]string{
			"return_url": a.cfg.ReturnURL,
			"cancel_url": a.cfg.CancelURL,
		},
	}

	status, body, err := a.do(ctx, http.MethodPost, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &RequestError{Gateway: "paypal", Status: status, Body: string(body)}
	}

	var order paypalOrderResponse
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("paypal order unmarshal: %w", err)
	}

	handle := &ProviderHandle{TransactionID: order.ID}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			handle.ApprovalURL = link.Href
		}
	}
	return handle, nil
}

type paypalCaptureResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		PayerID string `json:"payer_id"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalErrorResponse struct {
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

// Verify captures the approved order. This is the money-moving call for the
// redirect model; an order the buyer has not approved yet comes back as a
// pending result, and a repeat call on an already-captured order reports the
// same success.
func (a *PayPalAdapter) Verify(ctx context.Context, transactionID string) (*PaymentResult, error) {
	if !a.configured() {
		return nil, fmt.Errorf("paypal: %w", ErrUnconfigured)
	}

	status, body, err := a.do(ctx, http.MethodPost, "/v2/checkout/orders/"+transactionID+"/capture", struct{}{})
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnprocessableEntity {
		var apiErr paypalErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		for _, d := range apiErr.Details {
			switch d.Issue {
			case "ORDER_NOT_APPROVED":
				return &PaymentResult{
					Success:       false,
					Pending:       true,
					TransactionID: transactionID,
					Error:         "payment not approved by buyer yet",
				}, nil
			case "ORDER_ALREADY_CAPTURED":
				return &PaymentResult{
					Success:       true,
					TransactionID: transactionID,
					Metadata:      map[string]string{"capture": "previously captured"},
				}, nil
			}
		}
		return &PaymentResult{
			Success:       false,
			TransactionID: transactionID,
			Error:         "capture rejected: " + string(body),
		}, nil
	}

	if status < 200 || status >= 300 {
		return nil, &RequestError{Gateway: "paypal", Status: status, Body: string(body)}
	}

	var capture paypalCaptureResponse
	if err := json.Unmarshal(body, &capture); err != nil {
		return nil, fmt.Errorf("paypal capture unmarshal: %w", err)
	}

	result := &PaymentResult{
		TransactionID: transactionID,
		Metadata:      map[string]string{},
	}
	if capture.Payer.PayerID != "" {
		result.Metadata["payer_id"] = capture.Payer.PayerID
	}
	for _, pu := range capture.PurchaseUnits {
		for _, c := range pu.Payments.Captures {
			result.Metadata["capture_id"] = c.ID
			result.Metadata["capture_status"] = c.Status
		}
	}

	switch capture.Status {
	case "COMPLETED":
		result.Success = true
	case "VOIDED":
		result.Canceled = true
		result.Error = "order voided"
	default:
		result.Pending = true
		result.Error = "order in state " + capture.Status
	}
	return result, nil
}

// paypalSignatureBundle is the JSON shape the webhook handler packs the
// PayPal transmission headers into, since verification needs all five.
type paypalSignatureBundle struct {
	TransmissionID   string `json:"transmission_id"`
	TransmissionTime string `json:"transmission_time"`
	TransmissionSig  string `json:"transmission_sig"`
	CertURL          string `json:"cert_url"`
	AuthAlgo         string `json:"auth_algo"`
}

type paypalWebhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// VerifyWebhook authenticates a notification through PayPal's
// verify-webhook-signature endpoint. The signature argument is the JSON
// bundle of transmission headers assembled by the webhook handler.
func (a *PayPalAdapter) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if !a.configured() || a.cfg.WebhookID == "" {
		return nil, fmt.Errorf("paypal: %w", ErrUnconfigured)
	}

	var bundle paypalSignatureBundle
	if err := json.Unmarshal([]byte(signature), &bundle); err != nil || bundle.TransmissionSig == "" {
		return nil, ErrBadSignature
	}

	verifyPayload := map[string]any{
		"transmission_id":   bundle.TransmissionID,
		"transmission_time": bundle.TransmissionTime,
		"transmission_sig":  bundle.TransmissionSig,
		"cert_url":          bundle.CertURL,
		"auth_algo":         bundle.AuthAlgo,
		"webhook_id":        a.cfg.WebhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	status, body, err := a.do(context.Background(), http.MethodPost, "/v1/notifications/verify-webhook-signature", verifyPayload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &RequestError{Gateway: "paypal", Status: status, Body: string(body)}
	}

	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(body, &verification); err != nil {
		return nil, fmt.Errorf("paypal verification unmarshal: %w", err)
	}
	if verification.VerificationStatus != "SUCCESS" {
		return nil, ErrBadSignature
	}

	var event paypalWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("paypal webhook unmarshal: %w", err)
	}

	txnID := event.Resource.SupplementaryData.RelatedIDs.OrderID
	if txnID == "" {
		txnID = event.Resource.ID
	}
	return &WebhookEvent{Type: event.EventType, TransactionID: txnID}, nil
}
