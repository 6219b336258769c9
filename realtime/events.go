package realtime

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	BookingCreated       EventType = "bookingCreated"
	BookingConfirmed     EventType = "bookingConfirmed"
	BookingCancelled     EventType = "bookingCancelled"
	RideUpdated          EventType = "rideUpdated"
	RideCancelled        EventType = "rideCancelled"
	DriverLocationUpdate EventType = "driverLocationUpdate"
	PaymentConfirmed     EventType = "paymentConfirmed"
)

// Firehose receives every event on every channel. It is meant for
// notification transports, not for end-user connections.
const Firehose = "*"

func UserChannel(id uuid.UUID) string { return "user:" + id.String() }
func RideChannel(id uuid.UUID) string { return "ride:" + id.String() }

// Event is what subscribers receive. Seq increases by one per channel.
type Event struct {
	Type    EventType `json:"type"`
	Channel string    `json:"channel"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
	Data    any       `json:"data"`
}

type BookingPayload struct {
	BookingID     uuid.UUID `json:"booking_id"`
	RideID        uuid.UUID `json:"ride_id"`
	PassengerID   uuid.UUID `json:"passenger_id"`
	DriverID      uuid.UUID `json:"driver_id"`
	Seats         int       `json:"seats"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalAmount   int64     `json:"total_amount"`
	RefundAmount  int64     `json:"refund_amount,omitempty"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
}

type RidePayload struct {
	RideID        uuid.UUID `json:"ride_id"`
	DriverID      uuid.UUID `json:"driver_id"`
	Status        string    `json:"status"`
	SeatsBooked   int       `json:"seats_booked"`
	DepartureTime time.Time `json:"departure_time"`
	Reason        string    `json:"reason,omitempty"`
}

type LocationPayload struct {
	RideID   uuid.UUID `json:"ride_id"`
	DriverID uuid.UUID `json:"driver_id"`
	Lat      float64   `json:"lat"`
	Lng      float64   `json:"lng"`
	Heading  *float64  `json:"heading,omitempty"`
	SpeedKmh *float64  `json:"speed_kmh,omitempty"`
}

type PaymentPayload struct {
	BookingID uuid.UUID `json:"booking_id"`
	IntentID  uuid.UUID `json:"intent_id"`
	Provider  string    `json:"provider"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}
