package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "pending_payment"
	BookingPending        BookingStatus = "pending"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingCompleted      BookingStatus = "completed"
	BookingCancelled      BookingStatus = "cancelled"
	BookingRejected       BookingStatus = "rejected"
	BookingExpired        BookingStatus = "expired"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPendingPayment: {BookingPending, BookingCancelled, BookingExpired},
	BookingPending:        {BookingConfirmed, BookingCancelled, BookingRejected},
	BookingConfirmed:      {BookingCompleted, BookingCancelled},
}

// ActiveBookingStatuses hold seats and count towards the one-active-booking
// per passenger and ride rule.
var ActiveBookingStatuses = []BookingStatus{BookingPendingPayment, BookingPending, BookingConfirmed}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsActive() bool {
	for _, active := range ActiveBookingStatuses {
		if s == active {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool { return !s.IsActive() }

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = "none"
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
)

type Booking struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	RideID      uuid.UUID `gorm:"type:uuid;not null;index" json:"ride_id"`
	PassengerID uuid.UUID `gorm:"type:uuid;not null;index" json:"passenger_id"`
	DriverID    uuid.UUID `gorm:"type:uuid;not null" json:"driver_id"`

	Seats        int    `gorm:"not null" json:"seats"`
	PricePerSeat int64  `gorm:"not null" json:"price_per_seat"`
	ServiceFee   int64  `gorm:"not null" json:"service_fee"`
	TotalAmount  int64  `gorm:"not null" json:"total_amount"`
	Currency     string `gorm:"size:3;not null" json:"currency"`

	Pickup  Place `gorm:"embedded;embeddedPrefix:pickup_" json:"pickup"`
	Dropoff Place `gorm:"embedded;embeddedPrefix:dropoff_" json:"dropoff"`

	// DepartureTime is the ride's departure as it was when the booking was
	// made; refunds are computed against it.
	DepartureTime time.Time `gorm:"not null" json:"departure_time"`

	Status           BookingStatus   `gorm:"size:20;not null;index" json:"status"`
	PaymentStatus    PaymentStatus   `gorm:"size:20;not null" json:"payment_status"`
	PaymentMethod    PaymentProvider `gorm:"size:20;not null" json:"payment_method"`
	PaymentIntentID  *uuid.UUID      `gorm:"type:uuid" json:"payment_intent_id,omitempty"`
	ReservationToken uuid.UUID       `gorm:"type:uuid;not null" json:"-"`
	ExpiresAt        time.Time       `gorm:"not null;index" json:"expires_at"`

	CancelledBy     *uuid.UUID   `gorm:"type:uuid" json:"cancelled_by,omitempty"`
	CancelledByRole *Role        `gorm:"size:20" json:"cancelled_by_role,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CancelReason    *string      `gorm:"type:text" json:"cancel_reason,omitempty"`
	RefundAmount    int64        `gorm:"not null" json:"refund_amount"`
	RefundStatus    RefundStatus `gorm:"size:20;not null" json:"refund_status"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Booking) IsPaid() bool { return b.PaymentStatus == PaymentPaid }
