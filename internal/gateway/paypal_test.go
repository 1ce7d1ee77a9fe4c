package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type paypalFixture struct {
	tokenCalls  atomic.Int32
	captureBody string
	captureCode int
	createBody  string
}

func (f *paypalFixture) server(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			f.tokenCalls.Add(1)
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, "client-id", user)
			require.Equal(t, "client-secret", pass)
			fmt.Fprint(w, `{"access_token":"token-1","expires_in":3600}`)
		case r.URL.Path == "/v2/checkout/orders" && r.Method == http.MethodPost:
			require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, f.createBody)
		case r.URL.Path == "/v2/checkout/orders/TXN1/capture":
			require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			w.WriteHeader(f.captureCode)
			fmt.Fprint(w, f.captureBody)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func paypalTestAdapter(baseURL string) *PayPalAdapter {
	return NewPayPalAdapter(PayPalConfig{
		BaseURL:   baseURL,
		ClientID:  "client-id",
		Secret:    "client-secret",
		WebhookID: "wh-1",
	})
}

func TestPayPalCreateIntent(t *testing.T) {
	fixture := &paypalFixture{
		createBody: `{"id":"TXN1","status":"CREATED","links":[
			{"href":"https://paypal.test/self","rel":"self"},
			{"href":"https://paypal.test/approve/TXN1","rel":"approve"}]}`,
	}
	srv := fixture.server(t)
	defer srv.Close()

	adapter := paypalTestAdapter(srv.URL)
	handle, err := adapter.CreateIntent(context.Background(), testIntent())
	require.NoError(t, err)
	require.Equal(t, "TXN1", handle.TransactionID)
	require.Equal(t, "https://paypal.test/approve/TXN1", handle.ApprovalURL)
}

func TestPayPalTokenReusedAcrossCalls(t *testing.T) {
	fixture := &paypalFixture{
		createBody:  `{"id":"TXN1","status":"CREATED","links":[]}`,
		captureCode: http.StatusCreated,
		captureBody: `{"id":"TXN1","status":"COMPLETED"}`,
	}
	srv := fixture.server(t)
	defer srv.Close()

	adapter := paypalTestAdapter(srv.URL)
	_, err := adapter.CreateIntent(context.Background(), testIntent())
	require.NoError(t, err)
	_, err = adapter.Verify(context.Background(), "TXN1")
	require.NoError(t, err)

	require.Equal(t, int32(1), fixture.tokenCalls.Load())
}

func TestPayPalVerifyNotApprovedIsPending(t *testing.T) {
	fixture := &paypalFixture{
		captureCode: http.StatusUnprocessableEntity,
		captureBody: `{"details":[{"issue":"ORDER_NOT_APPROVED"}]}`,
	}
	srv := fixture.server(t)
	defer srv.Close()

	result, err := paypalTestAdapter(srv.URL).Verify(context.Background(), "TXN1")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, result.Pending)
	require.False(t, result.Canceled)
}

func TestPayPalVerifyRepeatCaptureStaysSuccessful(t *testing.T) {
	fixture := &paypalFixture{
		captureCode: http.StatusUnprocessableEntity,
		captureBody: `{"details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`,
	}
	srv := fixture.server(t)
	defer srv.Close()

	result, err := paypalTestAdapter(srv.URL).Verify(context.Background(), "TXN1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.Pending)
}

func TestPayPalVerifyCompleted(t *testing.T) {
	fixture := &paypalFixture{
		captureCode: http.StatusCreated,
		captureBody: `{"id":"TXN1","status":"COMPLETED","payer":{"payer_id":"PAYER1"},
			"purchase_units":[{"payments":{"captures":[{"id":"CAP1","status":"COMPLETED"}]}}]}`,
	}
	srv := fixture.server(t)
	defer srv.Close()

	result, err := paypalTestAdapter(srv.URL).Verify(context.Background(), "TXN1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "CAP1", result.Metadata["capture_id"])
	require.Equal(t, "PAYER1", result.Metadata["payer_id"])
}

func TestPayPalUnconfigured(t *testing.T) {
	adapter := NewPayPalAdapter(PayPalConfig{})
	_, err := adapter.CreateIntent(context.Background(), testIntent())
	require.ErrorIs(t, err, ErrUnconfigured)
	_, err = adapter.Verify(context.Background(), "TXN1")
	require.ErrorIs(t, err, ErrUnconfigured)
}

func TestPayPalVerifyWebhookBadBundle(t *testing.T) {
	adapter := paypalTestAdapter("http://unused.invalid")

	_, err := adapter.VerifyWebhook([]byte(`{}`), "not-json")
	require.ErrorIs(t, err, ErrBadSignature)

	// Headers absent: empty bundle fields never reach the provider.
	bundle, _ := json.Marshal(map[string]string{})
	_, err = adapter.VerifyWebhook([]byte(`{}`), string(bundle))
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestPayPalVerifyWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			fmt.Fprint(w, `{"access_token":"token-1","expires_in":3600}`)
		case "/v1/notifications/verify-webhook-signature":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "wh-1", req["webhook_id"])
			require.Equal(t, "tid-1", req["transmission_id"])
			fmt.Fprint(w, `{"verification_status":"SUCCESS"}`)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	adapter := paypalTestAdapter(srv.URL)
	bundle, _ := json.Marshal(map[string]string{
		"transmission_id":   "tid-1",
		"transmission_time": "2026-08-29T10:00:00Z",
		"transmission_sig":  "sig-1",
		"cert_url":          "https://api.paypal.test/cert",
		"auth_algo":         "SHA256withRSA",
	})
	payload := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED",
		"resource":{"id":"CAP1","supplementary_data":{"related_ids":{"order_id":"TXN1"}}}}`)

	event, err := adapter.VerifyWebhook(payload, string(bundle))
	require.NoError(t, err)
	require.Equal(t, "PAYMENT.CAPTURE.COMPLETED", event.Type)
	require.Equal(t, "TXN1", event.TransactionID)
}

func TestPayPalVerifyWebhookFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			fmt.Fprint(w, `{"access_token":"token-1","expires_in":3600}`)
		default:
			fmt.Fprint(w, `{"verification_status":"FAILURE"}`)
		}
	}))
	defer srv.Close()

	adapter := paypalTestAdapter(srv.URL)
	bundle, _ := json.Marshal(map[string]string{
		"transmission_id":  "tid-1",
		"transmission_sig": "sig-1",
	})
	_, err := adapter.VerifyWebhook([]byte(`{"event_type":"x"}`), string(bundle))
	require.ErrorIs(t, err, ErrBadSignature)
}
