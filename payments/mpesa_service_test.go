package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anjiri1684/seatshare/models"
)

type kcbStub struct {
	*httptest.Server
	lastPush   StkPushRequest
	pushStatus int
	resultCode string
}

func newKCBStub(t *testing.T) *kcbStub {
	t.Helper()
	stub := &kcbStub{pushStatus: http.StatusOK, resultCode: "0"}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			if user, pass, ok := r.BasicAuth(); !ok || user != "key" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"kcb-token","expires_in":3600}`))
		case "/stkpush":
			if r.Header.Get("Authorization") != "Bearer kcb-token" || r.Header.Get("operation") != "STKPush" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if stub.pushStatus != http.StatusOK {
				w.WriteHeader(stub.pushStatus)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&stub.lastPush)
			var resp StkPushResponse
			resp.Response.ResponseCode = "0"
			resp.Response.CheckoutRequestID = "ws_CO_123"
			resp.Response.CustomerMessage = "Success. Request accepted for processing"
			_ = json.NewEncoder(w).Encode(resp)
		case "/stkpushquery":
			var resp StkPushResponse
			resp.Response.ResultCode = stub.resultCode
			resp.Response.ResultDesc = "result " + stub.resultCode
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *kcbStub) provider() *MpesaProvider {
	return NewMpesaProvider(MpesaConfig{
		BaseURL:         s.URL,
		TokenURL:        s.URL + "/token",
		APIKey:          "key",
		APISecret:       "secret",
		AccountNumber:   "1234567",
		TransactionDesc: "SeatShare booking",
		CallbackURL:     "https://example.com/api/v1/payments/webhook/mpesa",
	}, quietLogger())
}

func TestMpesaInitiate(t *testing.T) {
	stub := newKCBStub(t)
	result, err := stub.provider().Initiate(context.Background(), InitiateRequest{
		Reference:  "SSABCDEFGHIJ",
		Amount:     150000,
		Currency:   "KES",
		PayerPhone: "0712 345 678",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if result.ProviderReference != "ws_CO_123" {
		t.Fatalf("unexpected provider reference %q", result.ProviderReference)
	}
	if stub.lastPush.PhoneNumber != "254712345678" || stub.lastPush.Amount != "1500" {
		t.Fatalf("unexpected push %+v", stub.lastPush)
	}
	if stub.lastPush.InvoiceNumber != "1234567-SSABCDEFGHIJ" {
		t.Fatalf("unexpected invoice number %q", stub.lastPush.InvoiceNumber)
	}
}

func TestMpesaInitiateRejectsBadInput(t *testing.T) {
	p := newKCBStub(t).provider()
	var perr *ProviderError

	_, err := p.Initiate(context.Background(), InitiateRequest{Reference: "SS1", Amount: 150000, PayerPhone: "12"})
	if !errors.As(err, &perr) || perr.Transient {
		t.Fatalf("expected permanent error for bad phone, got %v", err)
	}
	_, err = p.Initiate(context.Background(), InitiateRequest{Reference: "SS1", Amount: 150050, PayerPhone: "0712345678"})
	if !errors.As(err, &perr) || perr.Transient {
		t.Fatalf("expected permanent error for fractional amount, got %v", err)
	}
}

func TestMpesaInitiateServerErrorIsTransient(t *testing.T) {
	stub := newKCBStub(t)
	stub.pushStatus = http.StatusServiceUnavailable
	_, err := stub.provider().Initiate(context.Background(), InitiateRequest{Reference: "SS1", Amount: 10000, PayerPhone: "0712345678"})
	if !isTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestMpesaVerify(t *testing.T) {
	stub := newKCBStub(t)
	p := stub.provider()
	for code, want := range map[string]models.IntentStatus{
		"0":            models.IntentSucceeded,
		"1032":         models.IntentFailed,
		"4999":         models.IntentPending,
		"500.001.1001": models.IntentPending,
	} {
		stub.resultCode = code
		n, err := p.Verify(context.Background(), "ws_CO_123")
		if err != nil {
			t.Fatalf("Verify(%s): %v", code, err)
		}
		if n.Status != want || n.ProviderReference != "ws_CO_123" {
			t.Errorf("result %s: got %+v, want %s", code, n, want)
		}
	}
}

const kcbSuccessCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_123",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1500},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "PhoneNumber", "Value": 254712345678}
        ]
      },
      "Reference": "1234567-SSABCDEFGHIJ"
    }
  }
}`

func TestMpesaWebhook(t *testing.T) {
	p := newKCBStub(t).provider()

	n, err := p.HandleWebhook([]byte(kcbSuccessCallback))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if n.Status != models.IntentSucceeded || n.ProviderReference != "ws_CO_123" || n.Reference != "SSABCDEFGHIJ" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Amount == nil || *n.Amount != 150000 || n.ProviderTxnID != "NLJ7RT61SV" {
		t.Fatalf("unexpected amount or receipt %+v", n)
	}

	cancelled := strings.Replace(kcbSuccessCallback, `"ResultCode": 0`, `"ResultCode": 1032`, 1)
	n, err = p.HandleWebhook([]byte(cancelled))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	if n.Status != models.IntentFailed {
		t.Fatalf("expected failed notification, got %s", n.Status)
	}

	if _, err := p.HandleWebhook([]byte(`{"Body":{}}`)); err == nil {
		t.Fatal("expected error for callback without reference")
	}
}
