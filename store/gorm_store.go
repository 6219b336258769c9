package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Rides() RideRepository            { return gormRides{s.db} }
func (s *GormStore) Seats() SeatRepository            { return gormSeats{s.db} }
func (s *GormStore) Bookings() BookingRepository      { return gormBookings{s.db} }
func (s *GormStore) Intents() PaymentIntentRepository { return gormIntents{s.db} }
func (s *GormStore) Users() UserRepository            { return gormUsers{s.db} }
func (s *GormStore) Earnings() EarningRepository      { return gormEarnings{s.db} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFound(err error, resource string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
	}
	return err
}

type gormRides struct{ db *gorm.DB }

func (r gormRides) Create(ctx context.Context, ride *models.Ride) error {
	return r.db.WithContext(ctx).Create(ride).Error
}

func (r gormRides) Get(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	var ride models.Ride
	if err := r.db.WithContext(ctx).First(&ride, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "ride", id)
	}
	return &ride, nil
}

func (r gormRides) Search(ctx context.Context, q RideSearch) ([]models.Ride, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", models.RideScheduled).
		Where("departure_time >= ? AND departure_time < ?", q.From, q.To).
		Where("seats_available - seats_booked >= ?", q.MinFreeSeats)
	if q.MaxPrice != nil {
		query = query.Where("price_per_seat <= ?", *q.MaxPrice)
	}
	if q.OriginBox != nil {
		query = query.
			Where("origin_lat BETWEEN ? AND ?", q.OriginBox.MinLat, q.OriginBox.MaxLat).
			Where("origin_lng BETWEEN ? AND ?", q.OriginBox.MinLng, q.OriginBox.MaxLng)
	}

	var rides []models.Ride
	if err := query.Order("departure_time asc").Find(&rides).Error; err != nil {
		return nil, err
	}
	return rides, nil
}

func (r gormRides) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Ride, error) {
	var rides []models.Ride
	err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("departure_time desc").
		Find(&rides).Error
	return rides, err
}

func (r gormRides) UpdateStatus(ctx context.Context, ride *models.Ride, from models.RideStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Ride{}).
		Where("id = ? AND status = ?", ride.ID, from).
		Updates(map[string]any{
			"status":        ride.Status,
			"cancel_reason": ride.CancelReason,
			"cancelled_at":  ride.CancelledAt,
			"started_at":    ride.StartedAt,
			"completed_at":  ride.CompletedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrStaleWrite
	}
	return nil
}

type gormSeats struct{ db *gorm.DB }

// Reserve is a single conditional increment: the row is only touched when
// the ride is open and has enough free seats at the instant of the update.
func (r gormSeats) Reserve(ctx context.Context, res *models.SeatReservation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Ride{}).
			Where("id = ? AND status = ? AND seats_available - seats_booked >= ?", res.RideID, models.RideScheduled, res.Seats).
			UpdateColumn("seats_booked", gorm.Expr("seats_booked + ?", res.Seats))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var ride models.Ride
			if err := tx.Select("status").First(&ride, "id = ?", res.RideID).Error; err != nil {
				return notFound(err, "ride", res.RideID)
			}
			if ride.Status != models.RideScheduled {
				return models.ConflictError{Msg: fmt.Sprintf("ride is %s and no longer accepts bookings", ride.Status)}
			}
			return models.ErrInsufficientSeats
		}
		return tx.Create(res).Error
	})
}

func (r gormSeats) Commit(ctx context.Context, token uuid.UUID, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.SeatReservation{}).
		Where("token = ? AND status = ?", token, models.ReservationHeld).
		Updates(map[string]any{"status": models.ReservationCommitted, "committed_at": at})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	res, err := r.GetReservation(ctx, token)
	if err != nil {
		return false, err
	}
	if res.Status == models.ReservationReleased {
		return false, models.StateTransitionError{Entity: "seat reservation", From: string(res.Status), To: string(models.ReservationCommitted)}
	}
	return false, nil
}

func (r gormSeats) Release(ctx context.Context, token uuid.UUID, at time.Time) (bool, error) {
	released := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var res models.SeatReservation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, "token = ?", token).Error; err != nil {
			return notFound(err, "seat reservation", token)
		}
		if res.Status == models.ReservationReleased {
			return nil
		}

		result := tx.Model(&models.Ride{}).
			Where("id = ? AND seats_booked >= ?", res.RideID, res.Seats).
			UpdateColumn("seats_booked", gorm.Expr("seats_booked - ?", res.Seats))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return models.InvariantViolation{Msg: fmt.Sprintf("releasing %d seats from ride %s would make seats_booked negative", res.Seats, res.RideID)}
		}

		if err := tx.Model(&models.SeatReservation{}).
			Where("token = ?", token).
			Updates(map[string]any{"status": models.ReservationReleased, "released_at": at}).Error; err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}

func (r gormSeats) GetReservation(ctx context.Context, token uuid.UUID) (*models.SeatReservation, error) {
	var res models.SeatReservation
	if err := r.db.WithContext(ctx).First(&res, "token = ?", token).Error; err != nil {
		return nil, notFound(err, "seat reservation", token)
	}
	return &res, nil
}

type gormBookings struct{ db *gorm.DB }

func (r gormBookings) Create(ctx context.Context, booking *models.Booking) error {
	err := r.db.WithContext(ctx).Create(booking).Error
	if isUniqueViolation(err) {
		return models.ErrDuplicateBooking
	}
	return err
}

func (r gormBookings) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &booking, nil
}

func (r gormBookings) FindActive(ctx context.Context, passengerID, rideID uuid.UUID) (*models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("passenger_id = ? AND ride_id = ? AND status IN ?", passengerID, rideID, models.ActiveBookingStatuses).
		Limit(1).
		Find(&bookings).Error
	if err != nil || len(bookings) == 0 {
		return nil, err
	}
	return &bookings[0], nil
}

func (r gormBookings) ListByRide(ctx context.Context, rideID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).Where("ride_id = ?", rideID).Order("created_at asc").Find(&bookings).Error
	return bookings, err
}

func (r gormBookings) ListByPassenger(ctx context.Context, passengerID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("passenger_id = ?", passengerID).
		Order("departure_time desc").
		Find(&bookings).Error
	return bookings, err
}

func (r gormBookings) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", models.BookingPendingPayment, now).
		Order("expires_at asc").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

func (r gormBookings) ListEndedHoldingSeats(ctx context.Context, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Joins("JOIN seat_reservations ON seat_reservations.token = bookings.reservation_token").
		Where("seat_reservations.status = ? AND bookings.status NOT IN ?", models.ReservationHeld, models.ActiveBookingStatuses).
		Order("bookings.updated_at asc").
		Limit(limit).
		Find(&bookings).Error
	return bookings, err
}

func (r gormBookings) Update(ctx context.Context, booking *models.Booking, from models.BookingStatus) error {
	result := r.db.WithContext(ctx).Model(booking).
		Where("status = ?", from).
		Select("*").Omit("id", "created_at").
		Updates(booking)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrStaleWrite
	}
	return nil
}

type gormIntents struct{ db *gorm.DB }

func (r gormIntents) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r gormIntents) Get(ctx context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	if err := r.db.WithContext(ctx).First(&intent, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "payment intent", id)
	}
	return &intent, nil
}

func (r gormIntents) FindByProviderReference(ctx context.Context, provider models.PaymentProvider, ref string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND (provider_reference = ? OR reference = ?)", provider, ref, ref).
		First(&intent).Error
	if err != nil {
		return nil, notFound(err, "payment intent", ref)
	}
	return &intent, nil
}

func (r gormIntents) ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	var intents []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND provider_reference IS NOT NULL AND updated_at <= ?", models.IntentPending, updatedBefore).
		Order("updated_at asc").
		Limit(limit).
		Find(&intents).Error
	return intents, err
}

func (r gormIntents) Update(ctx context.Context, intent *models.PaymentIntent, from models.IntentStatus) error {
	result := r.db.WithContext(ctx).Model(intent).
		Where("status = ?", from).
		Select("*").Omit("id", "created_at").
		Updates(intent)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrStaleWrite
	}
	return nil
}

type gormUsers struct{ db *gorm.DB }

func (r gormUsers) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (r gormUsers) Upsert(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "email", "phone", "role", "kyc_status", "updated_at"}),
	}).Create(user).Error
}

type gormEarnings struct{ db *gorm.DB }

func (r gormEarnings) Create(ctx context.Context, earning *models.DriverEarning) error {
	if earning.ID == uuid.Nil {
		earning.ID = uuid.New()
	}
	err := r.db.WithContext(ctx).Create(earning).Error
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

func (r gormEarnings) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.DriverEarning, error) {
	var earnings []models.DriverEarning
	err := r.db.WithContext(ctx).Where("driver_id = ?", driverID).Order("created_at desc").Find(&earnings).Error
	return earnings, err
}
