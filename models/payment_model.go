package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentProvider string

const (
	ProviderMpesa  PaymentProvider = "mpesa"
	ProviderAirtel PaymentProvider = "airtel_money"
	ProviderCard   PaymentProvider = "card"
)

func (p PaymentProvider) Valid() bool {
	switch p {
	case ProviderMpesa, ProviderAirtel, ProviderCard:
		return true
	}
	return false
}

// IsMobileMoney providers push a prompt to the payer's phone.
func (p PaymentProvider) IsMobileMoney() bool {
	return p == ProviderMpesa || p == ProviderAirtel
}

type IntentStatus string

const (
	IntentInitiated IntentStatus = "initiated"
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
)

func (s IntentStatus) IsTerminal() bool {
	return s == IntentSucceeded || s == IntentFailed
}

// PaymentIntent is one attempt to collect a booking's amount through one
// provider. Only the payment orchestrator writes it.
type PaymentIntent struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	BookingID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"booking_id"`
	Provider          PaymentProvider `gorm:"size:20;not null;uniqueIndex:idx_intent_provider_ref" json:"provider"`
	ProviderReference *string         `gorm:"size:255;uniqueIndex:idx_intent_provider_ref" json:"provider_reference,omitempty"`
	ProviderTxnID     *string         `gorm:"size:255" json:"provider_txn_id,omitempty"`
	Reference         string          `gorm:"size:32;not null;unique" json:"reference"`
	Status            IntentStatus    `gorm:"size:20;not null;index" json:"status"`
	Amount            int64           `gorm:"not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	PayerPhone        string          `gorm:"size:20" json:"-"`
	CheckoutURL       *string         `gorm:"size:512" json:"checkout_url,omitempty"`
	CustomerMessage   *string         `gorm:"size:255" json:"customer_message,omitempty"`
	Attempts          int             `gorm:"not null" json:"attempts"`
	FailureReason     *string         `gorm:"type:text" json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PaymentIntent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *PaymentIntent) ProviderRef() string {
	if p.ProviderReference == nil {
		return ""
	}
	return *p.ProviderReference
}
