package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auteng/x402-go"
	"github.com/auteng/x402-go/encoding"
)

func TestProbe_PaymentRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{
			"x402Version": 2,
			"resource": {"url": "u"},
			"accepts": [{
				"scheme": "exact",
				"network": "eip155:8453",
				"asset": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				"amount": "2000",
				"payTo": "0xAAA",
				"maxTimeoutSeconds": 300
			}]
		}`))
	}))
	defer server.Close()

	result, err := Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if !result.Enabled || result.Status != http.StatusPaymentRequired || result.URL != server.URL {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Price != "$0.002 USDC on Base" {
		t.Errorf("Price = %q, want %q", result.Price, "$0.002 USDC on Base")
	}
	if result.PaymentRequired == nil || result.PaymentRequired.Resource.URL != "u" || result.PaymentRequired.Accepts[0].PayTo != "0xAAA" {
		t.Errorf("unexpected requirement: %+v", result.PaymentRequired)
	}
}

func TestProbe_PricesFirstOption(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{
			"resource": {"url": "u"},
			"accepts": [
				{"network": "eip155:8453", "asset": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "amount": "5000"},
				{"network": "eip155:8453", "asset": "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "amount": "1000"}
			]
		}`))
	}))
	defer server.Close()

	result, err := Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if result.Price != "$0.005 USDC on Base" {
		t.Errorf("Price = %q, want first option price", result.Price)
	}
	if len(result.PaymentRequired.Accepts) != 2 {
		t.Errorf("expected both options, got %d", len(result.PaymentRequired.Accepts))
	}
}

func TestProbe_NotEnabled(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"ok with demand-shaped body", http.StatusOK, `{"resource": {"url": "u"}, "accepts": [{"amount": "1"}]}`},
		{"ok plain", http.StatusOK, "hello"},
		{"not found", http.StatusNotFound, ""},
		{"server error", http.StatusInternalServerError, "boom"},
		{"402 malformed", http.StatusPaymentRequired, "{not json"},
		{"402 empty accepts", http.StatusPaymentRequired, `{"x402Version": 2, "resource": {"url": "u"}, "accepts": []}`},
		{"402 unknown shape", http.StatusPaymentRequired, `{"accepts": [{"price": "1"}]}`},
		{"402 empty body", http.StatusPaymentRequired, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result, err := Probe(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Probe must not fail for non-paying targets: %v", err)
			}
			if result.Enabled || result.Price != "" || result.PaymentRequired != nil {
				t.Errorf("expected not enabled, got %+v", result)
			}
			if result.Status != tt.status {
				t.Errorf("Status = %d, want %d", result.Status, tt.status)
			}
		})
	}
}

func TestProbe_PaymentRequiredHeader(t *testing.T) {
	demand, _ := encoding.EncodeRequirements(v2Demand("500"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderPaymentRequired, demand)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	result, err := Probe(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if !result.Enabled || result.Price != "$0.0005 USDC on Base" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestProbe_RequestOptions(t *testing.T) {
	var (
		gotMethod string
		gotHeader string
		gotBody   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
	}))
	defer server.Close()

	_, err := Probe(context.Background(), server.URL,
		WithProbeMethod(http.MethodPost),
		WithProbeHeader("Authorization", "Bearer token"),
		WithProbeBody([]byte(`{"prompt":"hi"}`)),
		WithProbeClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if gotMethod != http.MethodPost || gotHeader != "Bearer token" || gotBody != `{"prompt":"hi"}` {
		t.Errorf("request not forwarded as configured: %s %q %q", gotMethod, gotHeader, gotBody)
	}
}

func TestProbe_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := Probe(context.Background(), url)
	var paymentErr *x402.PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Code != x402.ErrCodeNetworkError {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestProbe_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Probe(ctx, "http://127.0.0.1:1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
