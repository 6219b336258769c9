// Package ledger is the only writer of a ride's booked-seat counter.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Ledger struct {
	seats store.SeatRepository
	now   func() time.Time
	log   *logrus.Entry
}

func New(seats store.SeatRepository, log *logrus.Logger) *Ledger {
	return &Ledger{
		seats: seats,
		now:   time.Now,
		log:   log.WithField("component", "seat_ledger"),
	}
}

// Reserve takes seats on a ride in one atomic step. A ConflictError means
// the ride is full right now; callers re-read availability rather than
// retrying the same request.
func (l *Ledger) Reserve(ctx context.Context, rideID uuid.UUID, seats int) (*models.SeatReservation, error) {
	if seats < 1 {
		return nil, models.ValidationError{Field: "seats", Msg: "must be at least 1"}
	}

	res := &models.SeatReservation{
		Token:  uuid.New(),
		RideID: rideID,
		Seats:  seats,
		Status: models.ReservationHeld,
	}
	if err := l.seats.Reserve(ctx, res); err != nil {
		if !models.IsConflict(err) && !models.IsNotFound(err) {
			return nil, fmt.Errorf("reserve %d seats on ride %s: %w", seats, rideID, err)
		}
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"ride_id": rideID,
		"seats":   seats,
		"token":   res.Token,
	}).Debug("seats reserved")
	return res, nil
}

// Commit marks a held reservation as belonging to a confirmed booking.
// It reports whether this call performed the commit.
func (l *Ledger) Commit(ctx context.Context, token uuid.UUID) (bool, error) {
	committed, err := l.seats.Commit(ctx, token, l.now())
	if err != nil {
		return false, fmt.Errorf("commit reservation %s: %w", token, err)
	}
	if committed {
		l.log.WithField("token", token).Debug("reservation committed")
	}
	return committed, nil
}

// Release gives the reserved seats back. Releasing the same token twice is
// a no-op. A release that would drive the counter negative is an invariant
// violation and is surfaced, never clamped.
func (l *Ledger) Release(ctx context.Context, token uuid.UUID) (bool, error) {
	released, err := l.seats.Release(ctx, token, l.now())
	if err != nil {
		if models.IsInvariantViolation(err) {
			l.log.WithFields(logrus.Fields{
				"token": token,
				"alert": true,
			}).WithError(err).Error("seat ledger invariant violated")
		}
		return false, fmt.Errorf("release reservation %s: %w", token, err)
	}
	if released {
		l.log.WithField("token", token).Debug("reservation released")
	}
	return released, nil
}
