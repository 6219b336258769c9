package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/sirupsen/logrus"
)

const (
	kcbBaseURL  = "https://api.buni.kcbgroup.com/mm/api/request/1.0.0"
	kcbTokenURL = "https://api.buni.kcbgroup.com/token?grant_type=client_credentials"
)

// M-Pesa result codes that mean the customer has not answered yet.
var mpesaPendingCodes = map[string]bool{"": true, "4999": true, "500.001.1001": true}

type MpesaConfig struct {
	BaseURL         string
	TokenURL        string
	APIKey          string
	APISecret       string
	AccountNumber   string
	RouteCode       string
	TransactionDesc string
	CallbackURL     string
	Timeout         time.Duration
}

// MpesaProvider collects through M-Pesa STK push via the KCB Buni gateway.
type MpesaProvider struct {
	cfg    MpesaConfig
	client *http.Client
	tokens *tokenCache
	log    *logrus.Entry
}

func NewMpesaProvider(cfg MpesaConfig, log *logrus.Logger) *MpesaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = kcbBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = kcbTokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}
	entry := log.WithField("provider", models.ProviderMpesa)
	return &MpesaProvider{
		cfg:    cfg,
		client: client,
		tokens: newTokenCache(clientCredentials(client, cfg.TokenURL, cfg.APIKey, cfg.APISecret), entry),
		log:    entry,
	}
}

func (p *MpesaProvider) Name() models.PaymentProvider { return models.ProviderMpesa }

type StkPushRequest struct {
	PhoneNumber            string `json:"phoneNumber"`
	Amount                 string `json:"amount"`
	InvoiceNumber          string `json:"invoiceNumber"`
	SharedShortCode        bool   `json:"sharedShortCode"`
	OrgShortCode           string `json:"orgShortCode"`
	OrgPassKey             string `json:"orgPassKey"`
	CallbackURL            string `json:"callbackUrl"`
	TransactionDescription string `json:"transactionDescription"`
}

type StkPushResponse struct {
	Header struct {
		StatusCode        string `json:"statusCode"`
		StatusDescription string `json:"statusDescription"`
	} `json:"header"`
	Response struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		CustomerMessage     string `json:"CustomerMessage"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		ResultCode          string `json:"ResultCode"`
		ResultDesc          string `json:"ResultDesc"`
	} `json:"response"`
}

type StkQueryRequest struct {
	CheckoutRequestID string `json:"checkoutRequestID"`
}

type KcbWebhookPayload struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
			Reference string `json:"Reference"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

var nonNumericRegex = regexp.MustCompile(`[^0-9]`)

// SanitizeMpesaNumber normalizes a Kenyan mobile number to 2547XXXXXXXX or
// 2541XXXXXXXX.
func SanitizeMpesaNumber(phone string) (string, error) {
	sanitized := nonNumericRegex.ReplaceAllString(phone, "")

	if (strings.HasPrefix(sanitized, "07") || strings.HasPrefix(sanitized, "01")) && len(sanitized) == 10 {
		return "254" + sanitized[1:], nil
	}
	if (strings.HasPrefix(sanitized, "7") || strings.HasPrefix(sanitized, "1")) && len(sanitized) == 9 {
		return "254" + sanitized, nil
	}
	if strings.HasPrefix(sanitized, "254") && len(sanitized) == 12 {
		return sanitized, nil
	}

	return "", errors.New("invalid M-Pesa phone number format")
}

func (p *MpesaProvider) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	phone, err := SanitizeMpesaNumber(req.PayerPhone)
	if err != nil {
		return InitiateResult{}, rejected(p.Name(), "stkpush", "%v", err)
	}
	amount, err := wholeUnits(p.Name(), req.Amount)
	if err != nil {
		return InitiateResult{}, err
	}
	if p.cfg.AccountNumber == "" {
		return InitiateResult{}, rejected(p.Name(), "stkpush", "KCB account number is not configured")
	}

	payload := StkPushRequest{
		PhoneNumber:            phone,
		Amount:                 strconv.FormatInt(amount, 10),
		InvoiceNumber:          fmt.Sprintf("%s-%s", p.cfg.AccountNumber, req.Reference),
		SharedShortCode:        true,
		CallbackURL:            p.cfg.CallbackURL,
		TransactionDescription: p.cfg.TransactionDesc,
	}

	var stk StkPushResponse
	if err := p.call(ctx, "stkpush", "STKPush", req.Reference, payload, &stk); err != nil {
		return InitiateResult{}, err
	}
	if stk.Response.ResponseCode != "0" {
		return InitiateResult{}, rejected(p.Name(), "stkpush", "STK push refused: %s", stk.Response.ResponseDescription)
	}

	p.log.WithField("reference", req.Reference).Info("STK push initiated")
	return InitiateResult{
		ProviderReference: stk.Response.CheckoutRequestID,
		CustomerMessage:   stk.Response.CustomerMessage,
	}, nil
}

func (p *MpesaProvider) Verify(ctx context.Context, checkoutRequestID string) (Notification, error) {
	var stk StkPushResponse
	if err := p.call(ctx, "stkpushquery", "STKQuery", checkoutRequestID, StkQueryRequest{CheckoutRequestID: checkoutRequestID}, &stk); err != nil {
		return Notification{}, err
	}

	n := Notification{ProviderReference: checkoutRequestID, Reason: stk.Response.ResultDesc}
	switch {
	case mpesaPendingCodes[stk.Response.ResultCode]:
		n.Status = models.IntentPending
	case stk.Response.ResultCode == "0":
		n.Status = models.IntentSucceeded
	default:
		n.Status = models.IntentFailed
	}
	return n, nil
}

func (p *MpesaProvider) HandleWebhook(payload []byte) (Notification, error) {
	var body KcbWebhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return Notification{}, fmt.Errorf("cannot parse M-Pesa callback: %w", err)
	}
	stk := body.Body.StkCallback
	if stk.CheckoutRequestID == "" && stk.Reference == "" {
		return Notification{}, errors.New("M-Pesa callback carries no reference")
	}

	// The invoice number is "<account>-<reference>".
	reference := stk.Reference
	if parts := strings.SplitN(stk.Reference, "-", 2); len(parts) == 2 {
		reference = parts[1]
	}

	n := Notification{
		ProviderReference: stk.CheckoutRequestID,
		Reference:         reference,
		Reason:            stk.ResultDesc,
	}
	if stk.ResultCode != 0 {
		n.Status = models.IntentFailed
		return n, nil
	}

	n.Status = models.IntentSucceeded
	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			if val, ok := item.Value.(string); ok {
				n.ProviderTxnID = val
			}
		case "Amount":
			if val, ok := item.Value.(float64); ok {
				minor := int64(val*100 + 0.5)
				n.Amount = &minor
			}
		}
	}
	return n, nil
}

func (p *MpesaProvider) call(ctx context.Context, path, operation, messageRef string, payload any, out any) error {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return transportError(p.Name(), path, fmt.Errorf("get KCB access token: %w", err))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return rejected(p.Name(), path, "marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return rejected(p.Name(), path, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("routeCode", p.cfg.RouteCode)
	req.Header.Set("operation", operation)
	req.Header.Set("messageId", fmt.Sprintf("%s_%d", messageRef, time.Now().UnixNano()))
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return transportError(p.Name(), path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		p.tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK {
		perr := statusError(p.Name(), path, resp)
		if resp.StatusCode == http.StatusUnauthorized {
			perr.Transient = true
		}
		p.log.WithError(perr).Warn("KCB Buni request failed")
		return perr
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(p.Name(), path, fmt.Errorf("read response: %w", err))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return rejected(p.Name(), path, "unmarshal response: %v", err)
	}
	return nil
}
