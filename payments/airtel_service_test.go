package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anjiri1684/seatshare/models"
)

func TestAirtelInitiateAndVerify(t *testing.T) {
	var got AirtelPaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/oauth2/token":
			var body airtelTokenRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.ClientID != "id" || body.GrantType != "client_credentials" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"airtel-token","expires_in":"180"}`))
		case "/merchant/v1/payments/":
			if r.Header.Get("X-Country") != "KE" || r.Header.Get("Authorization") != "Bearer airtel-token" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"data":{"transaction":{"id":"SSAIRTEL0001","status":"SUCCESS"}},"status":{"code":"200","success":true,"result_code":"ESB000010"}}`))
		case "/standard/v1/payments/SSAIRTEL0001":
			_, _ = w.Write([]byte(`{"data":{"transaction":{"airtel_money_id":"MP2103","id":"SSAIRTEL0001","status":"TS"}},"status":{"success":true}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := NewAirtelProvider(AirtelConfig{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"}, quietLogger())
	result, err := p.Initiate(context.Background(), InitiateRequest{
		Reference:   "SSAIRTEL0001",
		Amount:      80000,
		Currency:    "KES",
		PayerPhone:  "0733123456",
		Description: "Seat booking SSAIRTEL0001",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if result.ProviderReference != "SSAIRTEL0001" {
		t.Fatalf("unexpected provider reference %q", result.ProviderReference)
	}
	if got.Subscriber.MSISDN != "733123456" || got.Transaction.Amount != 800 || got.Transaction.Currency != "KES" {
		t.Fatalf("unexpected collection request %+v", got)
	}

	n, err := p.Verify(context.Background(), "SSAIRTEL0001")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n.Status != models.IntentSucceeded || n.ProviderTxnID != "MP2103" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestAirtelWebhook(t *testing.T) {
	p := NewAirtelProvider(AirtelConfig{}, quietLogger())

	n, err := p.HandleWebhook([]byte(`{"transaction":{"id":"SSAIRTEL0001","message":"Paid","status_code":"TS","airtel_money_id":"MP2103"}}`))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if n.Status != models.IntentSucceeded || n.Reference != "SSAIRTEL0001" {
		t.Fatalf("unexpected notification %+v", n)
	}

	n, _ = p.HandleWebhook([]byte(`{"transaction":{"id":"SSAIRTEL0001","status_code":"TF"}}`))
	if n.Status != models.IntentFailed {
		t.Fatalf("expected failure, got %s", n.Status)
	}
	n, _ = p.HandleWebhook([]byte(`{"transaction":{"id":"SSAIRTEL0001","status_code":"TIP"}}`))
	if n.Status != models.IntentPending {
		t.Fatalf("expected pending, got %s", n.Status)
	}
	if _, err := p.HandleWebhook([]byte(`{"transaction":{}}`)); err == nil {
		t.Fatal("expected error for callback without id")
	}
}
