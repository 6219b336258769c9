package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var loadEnv sync.Once

func Config(key string) string {
	loadEnv.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			logrus.Info(".env file not found, reading from system environment variables")
		}
	})
	return strings.TrimSpace(os.Getenv(key))
}

type Settings struct {
	AppName     string
	Port        string
	LogLevel    string
	LogFormat   string
	JWTSecret   string
	StoreDriver string
	DatabaseURL string

	Currency        string
	Timezone        string
	PaymentTTL      time.Duration
	ServiceFee      int64
	CommissionRate  float64
	DefaultRadiusKm float64
	MaxRadiusKm     float64
	StartWindow     time.Duration
	OSRMBaseURL     string

	PaymentTimeout     time.Duration
	PaymentMaxAttempts int
	WebhookSecret      string
	ReconcileAfter     time.Duration
	ExpirySchedule     string
	ReconcileSchedule  string

	KcbBaseURL         string
	KcbTokenURL        string
	KcbAPIKey          string
	KcbAPISecret       string
	KcbAccountNumber   string
	KcbRouteCode       string
	KcbTransactionDesc string
	MpesaCallbackURL   string

	AirtelBaseURL      string
	AirtelClientID     string
	AirtelClientSecret string
	AirtelCountry      string

	PayPalAPIBaseURL   string
	PayPalClientID     string
	PayPalClientSecret string
	PayPalReturnURL    string
	PayPalCancelURL    string

	AMQPURL      string
	AMQPExchange string

	BrevoAPIKey     string
	EmailSender     string
	EmailSenderName string

	HubInboxSize        int
	HubSubscriberBuffer int
}

// Load reads every setting once, applying defaults for anything unset.
func Load() Settings {
	return Settings{
		AppName:     str("APP_NAME", "SeatShare"),
		Port:        str("PORT", "8080"),
		LogLevel:    str("LOG_LEVEL", "info"),
		LogFormat:   str("LOG_FORMAT", "json"),
		JWTSecret:   Config("JWT_SECRET"),
		StoreDriver: str("STORE_DRIVER", "postgres"),
		DatabaseURL: Config("DATABASE_URL"),

		Currency:        str("CURRENCY", "KES"),
		Timezone:        str("APP_TIMEZONE", "Africa/Nairobi"),
		PaymentTTL:      duration("BOOKING_PAYMENT_TTL", 15*time.Minute),
		ServiceFee:      int64(integer("BOOKING_SERVICE_FEE", 0)),
		CommissionRate:  float("DRIVER_COMMISSION_RATE", 0.10),
		DefaultRadiusKm: float("SEARCH_DEFAULT_RADIUS_KM", 10),
		MaxRadiusKm:     float("SEARCH_MAX_RADIUS_KM", 100),
		StartWindow:     duration("RIDE_START_WINDOW", time.Hour),
		OSRMBaseURL:     Config("OSRM_BASE_URL"),

		PaymentTimeout:     duration("PAYMENT_PROVIDER_TIMEOUT", 5*time.Second),
		PaymentMaxAttempts: integer("PAYMENT_MAX_ATTEMPTS", 3),
		WebhookSecret:      Config("PAYMENT_WEBHOOK_SECRET"),
		ReconcileAfter:     duration("PAYMENT_RECONCILE_AFTER", 2*time.Minute),
		ExpirySchedule:     str("BOOKING_EXPIRY_SCHEDULE", "@every 1m"),
		ReconcileSchedule:  str("PAYMENT_RECONCILE_SCHEDULE", "@every 2m"),

		KcbBaseURL:         Config("KCB_BASE_URL"),
		KcbTokenURL:        Config("KCB_TOKEN_URL"),
		KcbAPIKey:          Config("KCB_API_KEY"),
		KcbAPISecret:       Config("KCB_API_SECRET"),
		KcbAccountNumber:   Config("KCB_ACCOUNT_NUMBER"),
		KcbRouteCode:       Config("KCB_ROUTE_CODE"),
		KcbTransactionDesc: str("KCB_TRANSACTION_DESC", "SeatShare ride booking"),
		MpesaCallbackURL:   Config("MPESA_CALLBACK_URL"),

		AirtelBaseURL:      Config("AIRTEL_BASE_URL"),
		AirtelClientID:     Config("AIRTEL_CLIENT_ID"),
		AirtelClientSecret: Config("AIRTEL_CLIENT_SECRET"),
		AirtelCountry:      str("AIRTEL_COUNTRY", "KE"),

		PayPalAPIBaseURL:   str("PAYPAL_API_BASE_URL", "https://api-m.sandbox.paypal.com"),
		PayPalClientID:     Config("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: Config("PAYPAL_CLIENT_SECRET"),
		PayPalReturnURL:    Config("PAYPAL_RETURN_URL"),
		PayPalCancelURL:    Config("PAYPAL_CANCEL_URL"),

		AMQPURL:      Config("AMQP_URL"),
		AMQPExchange: str("AMQP_EXCHANGE", "seatshare.events"),

		BrevoAPIKey:     Config("BREVO_API_KEY"),
		EmailSender:     Config("EMAIL_SENDER"),
		EmailSenderName: Config("EMAIL_SENDER_NAME"),

		HubInboxSize:        integer("HUB_INBOX_SIZE", 1024),
		HubSubscriberBuffer: integer("HUB_SUBSCRIBER_BUFFER", 64),
	}
}

// Location resolves Timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		logrus.WithError(err).WithField("timezone", s.Timezone).Warn("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

func str(key, def string) string {
	if v := Config(key); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	v := Config(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid integer %q, using default %d", v, def)
		return def
	}
	return n
}

func float(key string, def float64) float64 {
	v := Config(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid number %q, using default %v", v, def)
		return def
	}
	return f
}

func duration(key string, def time.Duration) time.Duration {
	v := Config(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid duration %q, using default %s", v, def)
		return def
	}
	return d
}
