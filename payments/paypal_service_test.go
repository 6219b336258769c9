package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anjiri1684/seatshare/models"
)

func TestPayPalOrderLifecycle(t *testing.T) {
	captured := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			_, _ = w.Write([]byte(`{"access_token":"pp-token","expires_in":32400}`))
		case r.URL.Path == "/v2/checkout/orders" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","links":[{"href":"https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T","rel":"approve"}]}`))
		case r.URL.Path == "/v2/checkout/orders/5O190127TN364715T" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"APPROVED"}`))
		case r.URL.Path == "/v2/checkout/orders/5O190127TN364715T/capture":
			captured = true
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"5O190127TN364715T","status":"COMPLETED","purchase_units":[{"custom_id":"SSPAYPAL0001","payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED","amount":{"currency_code":"KES","value":"1550.00"}}]}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewPayPalProvider(PayPalConfig{APIBaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"}, quietLogger())
	result, err := p.Initiate(context.Background(), InitiateRequest{Reference: "SSPAYPAL0001", Amount: 155000, Currency: "KES"})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if result.ProviderReference != "5O190127TN364715T" || result.CheckoutURL == "" {
		t.Fatalf("unexpected result %+v", result)
	}

	n, err := p.Verify(context.Background(), "5O190127TN364715T")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !captured {
		t.Fatal("approved order was not captured")
	}
	if n.Status != models.IntentSucceeded || n.Reference != "SSPAYPAL0001" || n.ProviderTxnID != "3C679366HH908993F" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Amount == nil || *n.Amount != 155000 {
		t.Fatalf("unexpected amount %v", n.Amount)
	}
}

func TestPayPalWebhookEvents(t *testing.T) {
	p := NewPayPalProvider(PayPalConfig{}, quietLogger())

	completed := `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"3C679366HH908993F","status":"COMPLETED","custom_id":"SSPAYPAL0001","amount":{"currency_code":"KES","value":"1550.00"},"supplementary_data":{"related_ids":{"order_id":"5O190127TN364715T"}}}}`
	n, err := p.HandleWebhook([]byte(completed))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if n.Status != models.IntentSucceeded || n.ProviderReference != "5O190127TN364715T" || *n.Amount != 155000 {
		t.Fatalf("unexpected notification %+v", n)
	}

	denied := `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"3C6","status":"DECLINED","custom_id":"SSPAYPAL0001","status_details":{"reason":"DECLINED_BY_RISK_FRAUD_FILTERS"}}}`
	n, err = p.HandleWebhook([]byte(denied))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if n.Status != models.IntentFailed || n.Reason != "DECLINED_BY_RISK_FRAUD_FILTERS" {
		t.Fatalf("unexpected notification %+v", n)
	}

	approved := `{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"5O190127TN364715T","status":"APPROVED"}}`
	n, err = p.HandleWebhook([]byte(approved))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if n.Status != models.IntentPending {
		t.Fatalf("approved order should stay pending until captured, got %s", n.Status)
	}

	if _, err := p.HandleWebhook([]byte(`{"event_type":"BILLING.PLAN.CREATED","resource":{}}`)); err == nil {
		t.Fatal("expected error for unsupported event")
	}
}
