package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anjiri1684/seatshare/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock init error: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("gorm open error: %v", err)
	}
	return NewGormStore(db), mock
}

func TestGormReserveInsufficientSeats(t *testing.T) {
	s, mock := newMockStore(t)
	rideID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "rides" SET "seats_booked"=seats_booked \+ \$1 WHERE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "status" FROM "rides"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("scheduled"))
	mock.ExpectRollback()

	err := s.Seats().Reserve(context.Background(), &models.SeatReservation{
		Token: uuid.New(), RideID: rideID, Seats: 2, Status: models.ReservationHeld,
	})
	if models.ErrorCode(err) != models.CodeInsufficientSeats {
		t.Fatalf("expected insufficient seats, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormReserveClosedRide(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "rides" SET "seats_booked"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT "status" FROM "rides"`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))
	mock.ExpectRollback()

	err := s.Seats().Reserve(context.Background(), &models.SeatReservation{
		Token: uuid.New(), RideID: uuid.New(), Seats: 1, Status: models.ReservationHeld,
	})
	if !models.IsConflict(err) || models.ErrorCode(err) == models.CodeInsufficientSeats {
		t.Fatalf("expected generic conflict for a cancelled ride, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormReserveRecordsReservation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "rides" SET "seats_booked"=seats_booked \+ \$1 WHERE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "seat_reservations"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Seats().Reserve(context.Background(), &models.SeatReservation{
		Token: uuid.New(), RideID: uuid.New(), Seats: 1, Status: models.ReservationHeld,
	})
	if err != nil {
		t.Fatalf("expected reservation to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormReleaseNegativeCounterIsInvariantViolation(t *testing.T) {
	s, mock := newMockStore(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "seat_reservations" WHERE token = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"token", "ride_id", "seats", "status", "created_at"}).
			AddRow(token.String(), uuid.NewString(), 2, "held", time.Now()))
	mock.ExpectExec(`UPDATE "rides" SET "seats_booked"=seats_booked - \$1 WHERE`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	released, err := s.Seats().Release(context.Background(), token, time.Now())
	if !models.IsInvariantViolation(err) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if released {
		t.Fatalf("nothing should have been released")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormReleaseAlreadyReleasedIsNoop(t *testing.T) {
	s, mock := newMockStore(t)
	token := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "seat_reservations" WHERE token = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"token", "ride_id", "seats", "status", "created_at"}).
			AddRow(token.String(), uuid.NewString(), 2, "released", time.Now()))
	mock.ExpectCommit()

	released, err := s.Seats().Release(context.Background(), token, time.Now())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if released {
		t.Fatalf("second release must be a no-op")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormBookingUniqueViolationIsDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "bookings"`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key value"})

	err := s.Bookings().Create(context.Background(), &models.Booking{
		RideID: uuid.New(), PassengerID: uuid.New(), Seats: 1, Status: models.BookingPendingPayment,
	})
	if !errors.Is(err, models.ErrDuplicateBooking) {
		t.Fatalf("expected duplicate booking, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormBookingUpdateStaleStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	booking := &models.Booking{ID: uuid.New(), Status: models.BookingExpired}
	err := s.Bookings().Update(context.Background(), booking, models.BookingPendingPayment)
	if !errors.Is(err, models.ErrStaleWrite) {
		t.Fatalf("expected stale write, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGormListEndedHoldingSeatsJoinsReservations(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM "bookings" JOIN seat_reservations ON seat_reservations.token = bookings.reservation_token WHERE seat_reservations.status = \$1 AND bookings.status NOT IN \(\$2,\$3,\$4\)`).
		WithArgs(models.ReservationHeld, models.BookingPendingPayment, models.BookingPending, models.BookingConfirmed, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(id.String(), string(models.BookingCancelled)))

	got, err := s.Bookings().ListEndedHoldingSeats(context.Background(), 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != id || got[0].Status != models.BookingCancelled {
		t.Fatalf("unexpected rows %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
