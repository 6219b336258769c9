package models

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// SeatReservation records one successful seat reservation against a ride.
// Its Token makes release idempotent.
type SeatReservation struct {
	Token       uuid.UUID         `gorm:"type:uuid;primary_key" json:"token"`
	RideID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"ride_id"`
	Seats       int               `gorm:"not null" json:"seats"`
	Status      ReservationStatus `gorm:"size:20;not null" json:"status"`
	CommittedAt *time.Time        `json:"committed_at,omitempty"`
	ReleasedAt  *time.Time        `json:"released_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
