package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RideStatus string

const (
	RideScheduled RideStatus = "scheduled"
	RideActive    RideStatus = "active"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
)

type Ride struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	DriverID      uuid.UUID `gorm:"type:uuid;not null;index" json:"driver_id"`
	Origin        Place     `gorm:"embedded;embeddedPrefix:origin_" json:"origin"`
	Destination   Place     `gorm:"embedded;embeddedPrefix:destination_" json:"destination"`
	DepartureTime time.Time `gorm:"not null;index" json:"departure_time"`

	// SeatsAvailable is the capacity fixed at creation. SeatsBooked is only
	// ever written by the seat ledger.
	SeatsAvailable int `gorm:"not null;check:chk_rides_capacity,seats_available >= 1" json:"seats_available"`
	SeatsBooked    int `gorm:"not null;check:chk_rides_seats_booked,seats_booked >= 0 AND seats_booked <= seats_available" json:"seats_booked"`

	PricePerSeat int64      `gorm:"not null" json:"price_per_seat"`
	Currency     string     `gorm:"size:3;not null" json:"currency"`
	Status       RideStatus `gorm:"size:20;not null;index" json:"status"`

	EstimatedDistanceKm  float64 `json:"estimated_distance_km,omitempty"`
	EstimatedDurationMin float64 `json:"estimated_duration_min,omitempty"`

	CancelReason *string    `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Ride) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Ride) FreeSeats() int { return r.SeatsAvailable - r.SeatsBooked }

func (r *Ride) HasDeparted(now time.Time) bool { return !now.Before(r.DepartureTime) }
