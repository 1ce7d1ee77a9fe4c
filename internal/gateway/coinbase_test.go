package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func coinbaseTestAdapter(baseURL string) *CoinbaseAdapter {
	return NewCoinbaseAdapter(CoinbaseConfig{
		BaseURL:       baseURL,
		APIKey:        "test-key",
		WebhookSecret: "whsec-test",
	})
}

func testIntent() PaymentIntent {
	return PaymentIntent{
		Items: []PaymentItem{
			{Name: "Linen shirt", Quantity: 2, UnitPrice: 45.00},
		},
		Shipping: ShippingDetails{Name: "Ada Lovelace", Email: "ada@example.com"},
		Subtotal: 90.00,
		Tax:      8.10,
		Total:    98.10,
		Currency: "USD",
	}
}

func TestCoinbaseCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/charges", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-CC-Api-Key"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		price := payload["local_price"].(map[string]any)
		require.Equal(t, "98.10", price["amount"])
		require.Equal(t, "fixed_price", payload["pricing_type"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"uuid-1","code":"CHARGE1","hosted_url":"https://commerce.coinbase.com/charges/CHARGE1"}}`)
	}))
	defer srv.Close()

	adapter := coinbaseTestAdapter(srv.URL)
	handle, err := adapter.CreateIntent(context.Background(), testIntent())
	require.NoError(t, err)
	require.Equal(t, "CHARGE1", handle.TransactionID)
	require.Equal(t, "CHARGE1", handle.Code)
	require.Equal(t, "https://commerce.coinbase.com/charges/CHARGE1", handle.HostedURL)
}

func TestCoinbaseCreateIntentUnconfigured(t *testing.T) {
	adapter := NewCoinbaseAdapter(CoinbaseConfig{})
	_, err := adapter.CreateIntent(context.Background(), testIntent())
	require.ErrorIs(t, err, ErrUnconfigured)
}

func TestCoinbaseCreateIntentRejectsInvalid(t *testing.T) {
	adapter := coinbaseTestAdapter("http://unused.invalid")

	var validation *ValidationError
	_, err := adapter.CreateIntent(context.Background(), PaymentIntent{Currency: "USD"})
	require.ErrorAs(t, err, &validation)

	intent := testIntent()
	intent.Total = 0
	_, err = adapter.CreateIntent(context.Background(), intent)
	require.ErrorAs(t, err, &validation)
}

func TestCoinbaseVerifyStaysPendingUntilCompleted(t *testing.T) {
	timelines := [][]string{
		{"NEW"},
		{"NEW", "PENDING"},
		{"NEW", "PENDING"},
		{"NEW", "PENDING", "COMPLETED"},
	}
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/charges/CHARGE1", r.URL.Path)
		entries := timelines[call]
		call++

		steps := make([]map[string]string, 0, len(entries))
		for _, s := range entries {
			steps = append(steps, map[string]string{"status": s})
		}
		resp := map[string]any{"data": map[string]any{"code": "CHARGE1", "timeline": steps}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	adapter := coinbaseTestAdapter(srv.URL)

	// Three polls before the customer pays: all pending, none an error.
	for i := 0; i < 3; i++ {
		result, err := adapter.Verify(context.Background(), "CHARGE1")
		require.NoError(t, err)
		require.False(t, result.Success)
		require.True(t, result.Pending)
		require.False(t, result.Canceled)
	}

	result, err := adapter.Verify(context.Background(), "CHARGE1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.Pending)
	require.Equal(t, "CHARGE1", result.TransactionID)
}

func TestCoinbaseVerifyExpiredIsCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"code":"CHARGE1","timeline":[{"status":"NEW"},{"status":"EXPIRED"}]}}`)
	}))
	defer srv.Close()

	result, err := coinbaseTestAdapter(srv.URL).Verify(context.Background(), "CHARGE1")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, result.Canceled)
}

func signCoinbase(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCoinbaseVerifyWebhook(t *testing.T) {
	adapter := coinbaseTestAdapter("http://unused.invalid")
	payload := []byte(`{"event":{"type":"charge:confirmed","data":{"code":"CHARGE1"}}}`)

	event, err := adapter.VerifyWebhook(payload, signCoinbase("whsec-test", payload))
	require.NoError(t, err)
	require.Equal(t, "charge:confirmed", event.Type)
	require.Equal(t, "CHARGE1", event.TransactionID)
}

func TestCoinbaseVerifyWebhookRejectsTamperedBody(t *testing.T) {
	adapter := coinbaseTestAdapter("http://unused.invalid")
	payload := []byte(`{"event":{"type":"charge:confirmed","data":{"code":"CHARGE1"}}}`)
	signature := signCoinbase("whsec-test", payload)

	tampered := []byte(`{"event":{"type":"charge:confirmed","data":{"code":"CHARGE2"}}}`)
	_, err := adapter.VerifyWebhook(tampered, signature)
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = adapter.VerifyWebhook(payload, "not-hex")
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = adapter.VerifyWebhook(payload, signCoinbase("wrong-secret", payload))
	require.ErrorIs(t, err, ErrBadSignature)
	require.False(t, errors.Is(err, ErrUnconfigured))
}
