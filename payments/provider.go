package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/anjiri1684/seatshare/models"
)

type InitiateRequest struct {
	// Reference is our merchant reference; providers echo it back.
	Reference   string
	Amount      int64
	Currency    string
	PayerPhone  string
	Description string
}

type InitiateResult struct {
	ProviderReference string
	CustomerMessage   string
	CheckoutURL       string
}

// Notification is a provider callback or status query normalized to the
// intent status set.
type Notification struct {
	ProviderReference string
	Reference         string
	Status            models.IntentStatus
	// Amount is nil when the provider does not report it.
	Amount        *int64
	ProviderTxnID string
	Reason        string
}

// Provider adapts one payment network to the orchestrator.
type Provider interface {
	Name() models.PaymentProvider
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error)
	Verify(ctx context.Context, providerReference string) (Notification, error)
	HandleWebhook(payload []byte) (Notification, error)
}

// ProviderError is returned by adapters. Transient errors are worth
// retrying; permanent ones are a decision by the provider.
type ProviderError struct {
	Provider   models.PaymentProvider
	Op         string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func isTransient(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func transportError(provider models.PaymentProvider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Transient: true, Err: err}
}

func rejected(provider models.PaymentProvider, op string, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: fmt.Errorf(format, args...)}
}

// statusError classifies a non-success HTTP response: 429 and 5xx are
// transient, other statuses are permanent.
func statusError(provider models.PaymentProvider, op string, resp *http.Response) *ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &ProviderError{
		Provider:   provider,
		Op:         op,
		StatusCode: resp.StatusCode,
		Transient:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		Err:        errors.New(string(body)),
	}
}

// Mobile money networks only collect whole units.
func wholeUnits(provider models.PaymentProvider, amount int64) (int64, error) {
	if amount <= 0 || amount%100 != 0 {
		return 0, rejected(provider, "initiate", "amount %d is not a whole number of currency units", amount)
	}
	return amount / 100, nil
}

// decimalAmount renders minor units as a two-decimal string.
func decimalAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// parseDecimalAmount converts "1234.5" or "1234.50" to minor units. Only
// plain non-negative decimals are accepted; signs and exponents are errors.
func parseDecimalAmount(s string) (int64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("amount %q is not a plain non-negative decimal", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	return units*100 + cents, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
