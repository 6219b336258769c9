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

type PayPalConfig struct {
	APIBaseURL   string
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
}

// PayPalProvider backs the card payment method with PayPal checkout orders.
// The passenger approves the order at CheckoutURL; capture happens on
// verification or when PayPal reports the approval.
type PayPalProvider struct {
	cfg    PayPalConfig
	client *http.Client
	tokens *tokenCache
	log    *logrus.Entry
}

func NewPayPalProvider(cfg PayPalConfig, log *logrus.Logger) *PayPalProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	client := &http.Client{Timeout: cfg.Timeout}
	entry := log.WithField("provider", models.ProviderCard)
	return &PayPalProvider{
		cfg:    cfg,
		client: client,
		tokens: newTokenCache(clientCredentials(client, cfg.APIBaseURL+"/v1/oauth2/token", cfg.ClientID, cfg.ClientSecret), entry),
		log:    entry,
	}
}

func (p *PayPalProvider) Name() models.PaymentProvider { return models.ProviderCard }

type payPalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type payPalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type payPalCapture struct {
	ID       string       `json:"id"`
	Status   string       `json:"status"`
	Amount   payPalAmount `json:"amount"`
	CustomID string       `json:"custom_id"`
}

type PayPalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []payPalLink `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string       `json:"reference_id"`
		CustomID    string       `json:"custom_id"`
		Amount      payPalAmount `json:"amount"`
		Payments    struct {
			Captures []payPalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (o *PayPalOrder) approveLink() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

func (o *PayPalOrder) capture() *payPalCapture {
	for _, pu := range o.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			return &pu.Payments.Captures[0]
		}
	}
	return nil
}

type PayPalWebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

type payPalCaptureResource struct {
	payPalCapture
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	StatusDetails struct {
		Reason string `json:"reason"`
	} `json:"status_details"`
}

func (p *PayPalProvider) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	if req.Amount <= 0 {
		return InitiateResult{}, rejected(p.Name(), "create order", "amount must be positive")
	}
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": req.Reference,
				"custom_id":    req.Reference,
				"description":  req.Description,
				"amount": payPalAmount{
					CurrencyCode: req.Currency,
					Value:        decimalAmount(req.Amount),
				},
			},
		},
		"application_context": map[string]string{
			"return_url":  p.cfg.ReturnURL,
			"cancel_url":  p.cfg.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	var order PayPalOrder
	if err := p.call(ctx, http.MethodPost, "/v2/checkout/orders", "create order", payload, http.StatusCreated, &order); err != nil {
		return InitiateResult{}, err
	}
	p.log.WithField("reference", req.Reference).Info("PayPal order created")
	return InitiateResult{
		ProviderReference: order.ID,
		CheckoutURL:       order.approveLink(),
		CustomerMessage:   "Complete the card payment at the checkout link",
	}, nil
}

// Verify reads the order and captures it if the payer approved it.
func (p *PayPalProvider) Verify(ctx context.Context, orderID string) (Notification, error) {
	var order PayPalOrder
	if err := p.call(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), "get order", nil, http.StatusOK, &order); err != nil {
		return Notification{}, err
	}
	if order.Status == "APPROVED" {
		captured, err := p.captureOrder(ctx, orderID)
		if err != nil {
			return Notification{}, err
		}
		order = *captured
	}
	return orderNotification(&order), nil
}

func (p *PayPalProvider) captureOrder(ctx context.Context, orderID string) (*PayPalOrder, error) {
	var order PayPalOrder
	err := p.call(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", "capture order", nil, http.StatusCreated, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func orderNotification(order *PayPalOrder) Notification {
	n := Notification{ProviderReference: order.ID, Reason: order.Status}
	for _, pu := range order.PurchaseUnits {
		if pu.CustomID != "" {
			n.Reference = pu.CustomID
			break
		}
	}
	switch order.Status {
	case "COMPLETED":
		n.Status = models.IntentSucceeded
		if c := order.capture(); c != nil {
			n.ProviderTxnID = c.ID
			if amount, err := parseDecimalAmount(c.Amount.Value); err == nil {
				n.Amount = &amount
			}
			if c.Status != "COMPLETED" {
				n.Status = models.IntentPending
				if c.Status == "DECLINED" || c.Status == "FAILED" {
					n.Status = models.IntentFailed
				}
			}
		}
	case "VOIDED":
		n.Status = models.IntentFailed
	default:
		n.Status = models.IntentPending
	}
	return n
}

func (p *PayPalProvider) HandleWebhook(payload []byte) (Notification, error) {
	var event PayPalWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return Notification{}, fmt.Errorf("cannot parse PayPal webhook: %w", err)
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED", "PAYMENT.CAPTURE.PENDING":
		var capture payPalCaptureResource
		if err := json.Unmarshal(event.Resource, &capture); err != nil {
			return Notification{}, fmt.Errorf("cannot parse PayPal capture: %w", err)
		}
		n := Notification{
			ProviderReference: capture.SupplementaryData.RelatedIDs.OrderID,
			Reference:         capture.CustomID,
			ProviderTxnID:     capture.ID,
			Reason:            capture.StatusDetails.Reason,
		}
		if n.ProviderReference == "" && n.Reference == "" {
			return Notification{}, errors.New("PayPal capture carries no order reference")
		}
		switch event.EventType {
		case "PAYMENT.CAPTURE.COMPLETED":
			n.Status = models.IntentSucceeded
			if amount, err := parseDecimalAmount(capture.Amount.Value); err == nil {
				n.Amount = &amount
			}
		case "PAYMENT.CAPTURE.PENDING":
			n.Status = models.IntentPending
		default:
			n.Status = models.IntentFailed
		}
		return n, nil

	case "CHECKOUT.ORDER.APPROVED", "CHECKOUT.ORDER.COMPLETED":
		var order PayPalOrder
		if err := json.Unmarshal(event.Resource, &order); err != nil {
			return Notification{}, fmt.Errorf("cannot parse PayPal order: %w", err)
		}
		if order.ID == "" {
			return Notification{}, errors.New("PayPal order event carries no order id")
		}
		return orderNotification(&order), nil
	}
	return Notification{}, fmt.Errorf("unsupported PayPal event type %q", event.EventType)
}

func (p *PayPalProvider) call(ctx context.Context, method, path, op string, payload any, want int, out any) error {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return transportError(p.Name(), op, fmt.Errorf("get PayPal access token: %w", err))
	}

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return rejected(p.Name(), op, "marshal request: %v", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIBaseURL+path, &body)
	if err != nil {
		return rejected(p.Name(), op, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := p.client.Do(req)
	if err != nil {
		return transportError(p.Name(), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want && resp.StatusCode != http.StatusOK {
		perr := statusError(p.Name(), op, resp)
		if resp.StatusCode == http.StatusUnauthorized {
			p.tokens.Invalidate()
			perr.Transient = true
		}
		p.log.WithError(perr).Warn("PayPal request failed")
		return perr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return rejected(p.Name(), op, "unmarshal response: %v", err)
	}
	return nil
}
