package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, htmlContent string) error
}

type BrevoConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	URL         string
	Timeout     time.Duration
}

// BrevoService sends transactional email through the Brevo API.
type BrevoService struct {
	cfg    BrevoConfig
	client *http.Client
	log    *logrus.Entry
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

// NewBrevoService returns nil when the service is not configured; callers
// treat a nil mailer as "email disabled".
func NewBrevoService(cfg BrevoConfig, log *logrus.Logger) *BrevoService {
	entry := log.WithField("component", "email")
	if cfg.APIKey == "" || cfg.SenderEmail == "" || cfg.SenderName == "" {
		entry.Warn("Email service not configured. Missing API Key, Sender Email, or Sender Name.")
		return nil
	}
	if cfg.URL == "" {
		cfg.URL = brevoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	entry.WithFields(logrus.Fields{"sender": cfg.SenderEmail}).Info("Email service initialized")
	return &BrevoService{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}, log: entry}
}

func (s *BrevoService) Send(ctx context.Context, toName, toEmail, subject, htmlContent string) error {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.cfg.SenderName, "email": s.cfg.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.cfg.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("failed to send email via Brevo: status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	s.log.WithField("to", toEmail).Debug("email sent")
	return nil
}
