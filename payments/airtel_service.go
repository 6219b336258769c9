package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/sirupsen/logrus"
)

const airtelBaseURL = "https://openapi.airtel.africa"

type AirtelConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Country      string
	Currency     string
	Timeout      time.Duration
}

// AirtelProvider collects through the Airtel Money collection API. Airtel
// uses our merchant reference as its transaction id.
type AirtelProvider struct {
	cfg    AirtelConfig
	client *http.Client
	tokens *tokenCache
	log    *logrus.Entry
}

func NewAirtelProvider(cfg AirtelConfig, log *logrus.Logger) *AirtelProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = airtelBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = "KE"
	}
	if cfg.Currency == "" {
		cfg.Currency = "KES"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	p := &AirtelProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.WithField("provider", models.ProviderAirtel),
	}
	p.tokens = newTokenCache(p.fetchToken, p.log)
	return p
}

func (p *AirtelProvider) Name() models.PaymentProvider { return models.ProviderAirtel }

type airtelTokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type AirtelPaymentRequest struct {
	Reference  string `json:"reference"`
	Subscriber struct {
		Country  string `json:"country"`
		Currency string `json:"currency"`
		MSISDN   string `json:"msisdn"`
	} `json:"subscriber"`
	Transaction struct {
		Amount   int64  `json:"amount"`
		Country  string `json:"country"`
		Currency string `json:"currency"`
		ID       string `json:"id"`
	} `json:"transaction"`
}

type airtelStatus struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ResultCode string `json:"result_code"`
	Success    bool   `json:"success"`
}

type AirtelPaymentResponse struct {
	Data struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status airtelStatus `json:"status"`
}

type AirtelEnquiryResponse struct {
	Data struct {
		Transaction struct {
			AirtelMoneyID string `json:"airtel_money_id"`
			ID            string `json:"id"`
			Message       string `json:"message"`
			Status        string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status airtelStatus `json:"status"`
}

type AirtelCallbackPayload struct {
	Transaction struct {
		ID            string `json:"id"`
		Message       string `json:"message"`
		StatusCode    string `json:"status_code"`
		AirtelMoneyID string `json:"airtel_money_id"`
	} `json:"transaction"`
}

// airtelStatusToIntent maps Airtel transaction states: TS success, TF
// failed, TIP/TA still in flight.
func airtelStatusToIntent(code string) models.IntentStatus {
	switch strings.ToUpper(code) {
	case "TS":
		return models.IntentSucceeded
	case "TF", "TE":
		return models.IntentFailed
	default:
		return models.IntentPending
	}
}

func (p *AirtelProvider) fetchToken(ctx context.Context) (TokenResponse, error) {
	body, err := json.Marshal(airtelTokenRequest{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		GrantType:    "client_credentials",
	})
	if err != nil {
		return TokenResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/auth/oauth2/token", bytes.NewReader(body))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	return doTokenRequest(p.client, req)
}

// airtelMSISDN strips the country code; Airtel expects the national number.
func airtelMSISDN(phone string) (string, error) {
	sanitized, err := SanitizeMpesaNumber(phone)
	if err != nil {
		return "", errors.New("invalid Airtel Money phone number format")
	}
	return strings.TrimPrefix(sanitized, "254"), nil
}

func (p *AirtelProvider) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	msisdn, err := airtelMSISDN(req.PayerPhone)
	if err != nil {
		return InitiateResult{}, rejected(p.Name(), "collect", "%v", err)
	}
	amount, err := wholeUnits(p.Name(), req.Amount)
	if err != nil {
		return InitiateResult{}, err
	}

	var payload AirtelPaymentRequest
	payload.Reference = req.Description
	payload.Subscriber.Country = p.cfg.Country
	payload.Subscriber.Currency = p.cfg.Currency
	payload.Subscriber.MSISDN = msisdn
	payload.Transaction.Amount = amount
	payload.Transaction.Country = p.cfg.Country
	payload.Transaction.Currency = p.cfg.Currency
	payload.Transaction.ID = req.Reference

	var out AirtelPaymentResponse
	if err := p.call(ctx, http.MethodPost, "/merchant/v1/payments/", "collect", payload, &out); err != nil {
		return InitiateResult{}, err
	}
	if !out.Status.Success {
		return InitiateResult{}, rejected(p.Name(), "collect", "collection refused: %s (%s)", out.Status.Message, out.Status.ResultCode)
	}

	p.log.WithField("reference", req.Reference).Info("Airtel Money collection initiated")
	return InitiateResult{
		ProviderReference: req.Reference,
		CustomerMessage:   "Enter your Airtel Money PIN on your phone to complete the payment",
	}, nil
}

func (p *AirtelProvider) Verify(ctx context.Context, reference string) (Notification, error) {
	var out AirtelEnquiryResponse
	if err := p.call(ctx, http.MethodGet, "/standard/v1/payments/"+url.PathEscape(reference), "enquiry", nil, &out); err != nil {
		return Notification{}, err
	}
	tx := out.Data.Transaction
	return Notification{
		ProviderReference: reference,
		Status:            airtelStatusToIntent(tx.Status),
		ProviderTxnID:     tx.AirtelMoneyID,
		Reason:            tx.Message,
	}, nil
}

func (p *AirtelProvider) HandleWebhook(payload []byte) (Notification, error) {
	var body AirtelCallbackPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return Notification{}, fmt.Errorf("cannot parse Airtel Money callback: %w", err)
	}
	tx := body.Transaction
	if tx.ID == "" {
		return Notification{}, errors.New("Airtel Money callback carries no transaction id")
	}
	return Notification{
		ProviderReference: tx.ID,
		Reference:         tx.ID,
		Status:            airtelStatusToIntent(tx.StatusCode),
		ProviderTxnID:     tx.AirtelMoneyID,
		Reason:            tx.Message,
	}, nil
}

func (p *AirtelProvider) call(ctx context.Context, method, path, op string, payload any, out any) error {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return transportError(p.Name(), op, fmt.Errorf("get Airtel access token: %w", err))
	}

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return rejected(p.Name(), op, "marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, body)
	if err != nil {
		return rejected(p.Name(), op, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Country", p.cfg.Country)
	req.Header.Set("X-Currency", p.cfg.Currency)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return transportError(p.Name(), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		perr := statusError(p.Name(), op, resp)
		if resp.StatusCode == http.StatusUnauthorized {
			p.tokens.Invalidate()
			perr.Transient = true
		}
		p.log.WithError(perr).Warn("Airtel Money request failed")
		return perr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return rejected(p.Name(), op, "unmarshal response: %v", err)
	}
	return nil
}
