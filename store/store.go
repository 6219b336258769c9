// Package store persists rides, bookings, payment intents and seat
// reservations. Two backends exist: GormStore for postgres and MemoryStore
// for single-process deployments and tests.
package store

import (
	"context"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/google/uuid"
)

// BoundingBox is a coarse lat/lng rectangle used to narrow a radius search
// before the exact great-circle check.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

func (b BoundingBox) Contains(p models.Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// RideSearch selects scheduled rides departing in [From, To) with at least
// MinFreeSeats free.
type RideSearch struct {
	From         time.Time
	To           time.Time
	MinFreeSeats int
	MaxPrice     *int64
	OriginBox    *BoundingBox
}

type RideRepository interface {
	Create(ctx context.Context, ride *models.Ride) error
	Get(ctx context.Context, id uuid.UUID) (*models.Ride, error)
	Search(ctx context.Context, q RideSearch) ([]models.Ride, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Ride, error)
	// UpdateStatus writes the ride's lifecycle fields if its stored status is
	// still from. The seat counter is never written here.
	UpdateStatus(ctx context.Context, ride *models.Ride, from models.RideStatus) error
}

// SeatRepository is used by the seat ledger only.
type SeatRepository interface {
	Reserve(ctx context.Context, res *models.SeatReservation) error
	Commit(ctx context.Context, token uuid.UUID, at time.Time) (bool, error)
	Release(ctx context.Context, token uuid.UUID, at time.Time) (bool, error)
	GetReservation(ctx context.Context, token uuid.UUID) (*models.SeatReservation, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindActive(ctx context.Context, passengerID, rideID uuid.UUID) (*models.Booking, error)
	ListByRide(ctx context.Context, rideID uuid.UUID) ([]models.Booking, error)
	ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	// ListEndedHoldingSeats returns terminal bookings whose seat
	// reservation is still held.
	ListEndedHoldingSeats(ctx context.Context, limit int) ([]models.Booking, error)
	// Update writes the booking if its stored status is still from,
	// otherwise it returns models.ErrStaleWrite.
	Update(ctx context.Context, booking *models.Booking, from models.BookingStatus) error
}

type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error)
	FindByProviderReference(ctx context.Context, provider models.PaymentProvider, ref string) (*models.PaymentIntent, error)
	ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error)
	Update(ctx context.Context, intent *models.PaymentIntent, from models.IntentStatus) error
}

type UserRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
}

type EarningRepository interface {
	// Create is idempotent per booking.
	Create(ctx context.Context, earning *models.DriverEarning) error
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.DriverEarning, error)
}

type Store interface {
	Rides() RideRepository
	Seats() SeatRepository
	Bookings() BookingRepository
	Intents() PaymentIntentRepository
	Users() UserRepository
	Earnings() EarningRepository
}
