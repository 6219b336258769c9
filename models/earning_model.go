package models

import (
	"time"

	"github.com/google/uuid"
)

type DriverEarning struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	BookingID  uuid.UUID `gorm:"type:uuid;not null;unique" json:"booking_id"`
	DriverID   uuid.UUID `gorm:"type:uuid;not null;index" json:"driver_id"`
	Gross      int64     `gorm:"not null" json:"gross"`
	Commission int64     `gorm:"not null" json:"commission"`
	Net        int64     `gorm:"not null" json:"net"`
	Currency   string    `gorm:"size:3;not null" json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
}
