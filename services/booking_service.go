package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/anjiri1684/seatshare/ledger"
	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxTransitionAttempts = 5

type BookingConfig struct {
	PaymentTTL     time.Duration
	ServiceFee     int64
	CommissionRate float64
	SweepBatchSize int
}

// PaymentInitiator starts collection for a freshly created booking. The
// intent it creates must use booking.PaymentIntentID as its id. The payment
// orchestrator implements it; it is attached after construction because the
// orchestrator in turn drives booking transitions.
type PaymentInitiator interface {
	Initiate(ctx context.Context, booking *models.Booking, payerPhone string) (*models.PaymentIntent, error)
}

type CreateBookingInput struct {
	RideID        uuid.UUID
	Seats         int
	Pickup        *models.Place
	Dropoff       *models.Place
	PaymentMethod models.PaymentProvider
	PayerPhone    string
}

// BookingResult carries the booking even when payment initiation failed so
// callers can show its final state.
type BookingResult struct {
	Booking *models.Booking       `json:"booking"`
	Intent  *models.PaymentIntent `json:"payment_intent,omitempty"`
}

// BookingService owns the booking state machine. Every status change goes
// through transition, which re-reads the row and writes it back only if no
// one else moved it in between.
type BookingService struct {
	store    store.Store
	ledger   *ledger.Ledger
	kyc      KYCChecker
	events   realtime.Publisher
	payments PaymentInitiator
	cfg      BookingConfig
	now      func() time.Time
	log      *logrus.Entry
}

func NewBookingService(st store.Store, l *ledger.Ledger, kyc KYCChecker, events realtime.Publisher, cfg BookingConfig, log *logrus.Logger) *BookingService {
	if cfg.PaymentTTL <= 0 {
		cfg.PaymentTTL = 15 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &BookingService{
		store:  st,
		ledger: l,
		kyc:    kyc,
		events: events,
		cfg:    cfg,
		now:    time.Now,
		log:    log.WithField("component", "booking_service"),
	}
}

func (s *BookingService) UsePayments(p PaymentInitiator) {
	s.payments = p
}

func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, in CreateBookingInput) (*BookingResult, error) {
	if !actor.IsPassenger() {
		return nil, models.AuthorizationError{Reason: "only passengers can book seats"}
	}
	if err := validateBookingInput(in); err != nil {
		return nil, err
	}

	approved, err := s.kyc.IsApproved(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("check kyc: %w", err)
	}
	if !approved {
		return nil, models.ErrKYCRequired
	}

	ride, err := s.store.Rides().Get(ctx, in.RideID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if ride.Status != models.RideScheduled {
		return nil, models.ConflictError{Msg: "ride is not open for booking"}
	}
	if ride.HasDeparted(now) {
		return nil, models.ConflictError{Msg: "ride has already departed"}
	}
	if ride.DriverID == actor.ID {
		return nil, models.AuthorizationError{Reason: "drivers cannot book their own ride"}
	}

	existing, err := s.store.Bookings().FindActive(ctx, actor.ID, ride.ID)
	if err != nil {
		return nil, fmt.Errorf("find active booking: %w", err)
	}
	if existing != nil {
		return nil, models.ErrDuplicateBooking
	}

	reservation, err := s.ledger.Reserve(ctx, ride.ID, in.Seats)
	if err != nil {
		return nil, err
	}

	// The intent id is fixed up front so the booking never needs a second
	// write to link it.
	intentID := uuid.New()
	booking := &models.Booking{
		ID:               uuid.New(),
		RideID:           ride.ID,
		PassengerID:      actor.ID,
		DriverID:         ride.DriverID,
		Seats:            in.Seats,
		PricePerSeat:     ride.PricePerSeat,
		ServiceFee:       s.cfg.ServiceFee,
		TotalAmount:      int64(in.Seats)*ride.PricePerSeat + s.cfg.ServiceFee,
		Currency:         ride.Currency,
		Pickup:           ride.Origin,
		Dropoff:          ride.Destination,
		DepartureTime:    ride.DepartureTime,
		Status:           models.BookingPendingPayment,
		PaymentStatus:    models.PaymentPending,
		PaymentMethod:    in.PaymentMethod,
		PaymentIntentID:  &intentID,
		ReservationToken: reservation.Token,
		ExpiresAt:        now.Add(s.cfg.PaymentTTL),
		RefundStatus:     models.RefundNone,
	}
	if in.Pickup != nil {
		booking.Pickup = *in.Pickup
	}
	if in.Dropoff != nil {
		booking.Dropoff = *in.Dropoff
	}

	if err := s.store.Bookings().Create(ctx, booking); err != nil {
		if _, relErr := s.ledger.Release(ctx, reservation.Token); relErr != nil {
			s.log.WithError(relErr).WithField("reservation", reservation.Token).Error("failed to release seats after booking insert failed")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"ride_id":    ride.ID,
		"seats":      booking.Seats,
	}).Info("booking created")
	s.publishBooking(realtime.BookingCreated, booking, "")

	// The ride may have been cancelled between the reservation and the
	// insert, in which case its cascade never saw this booking.
	if current, err := s.store.Rides().Get(ctx, ride.ID); err == nil && current.Status == models.RideCancelled {
		cancelled, cerr := s.cancel(ctx, booking.ID, models.System(), "ride was cancelled", true)
		if cerr != nil {
			return nil, cerr
		}
		return &BookingResult{Booking: cancelled}, models.ConflictError{Msg: "ride is not open for booking"}
	}

	result := &BookingResult{Booking: booking}
	if s.payments == nil {
		return result, nil
	}

	intent, err := s.payments.Initiate(ctx, booking, in.PayerPhone)
	if err != nil {
		if fresh, getErr := s.store.Bookings().Get(ctx, booking.ID); getErr == nil {
			result.Booking = fresh
		}
		return result, err
	}
	result.Intent = intent
	return result, nil
}

func validateBookingInput(in CreateBookingInput) error {
	if in.RideID == uuid.Nil {
		return models.ValidationError{Field: "ride_id", Msg: "is required"}
	}
	if in.Seats < 1 {
		return models.ValidationError{Field: "seats", Msg: "must be at least 1"}
	}
	if !in.PaymentMethod.Valid() {
		return models.ValidationError{Field: "payment_method", Msg: "must be mpesa, airtel_money or card"}
	}
	if in.PaymentMethod.IsMobileMoney() && in.PayerPhone == "" {
		return models.ValidationError{Field: "phone_number", Msg: "is required for mobile money"}
	}
	if in.Pickup != nil && !in.Pickup.Point().Valid() {
		return models.ValidationError{Field: "pickup", Msg: "has invalid coordinates"}
	}
	if in.Dropoff != nil && !in.Dropoff.Point().Valid() {
		return models.ValidationError{Field: "dropoff", Msg: "has invalid coordinates"}
	}
	return nil
}

// transition moves a booking to status to. mutate runs on a fresh copy
// before the conditional write. changed is false when the booking was
// already in status to.
func (s *BookingService) transition(ctx context.Context, id uuid.UUID, to models.BookingStatus, mutate func(*models.Booking) error) (*models.Booking, bool, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		b, err := s.store.Bookings().Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if b.Status == to {
			return b, false, nil
		}
		if !b.Status.CanTransitionTo(to) {
			return b, false, models.StateTransitionError{Entity: "booking", From: string(b.Status), To: string(to)}
		}

		from := b.Status
		if mutate != nil {
			if err := mutate(b); err != nil {
				return nil, false, err
			}
		}
		b.Status = to

		err = s.store.Bookings().Update(ctx, b, from)
		if errors.Is(err, models.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("update booking %s: %w", id, err)
		}
		return b, true, nil
	}
	return nil, false, models.ConflictError{Msg: "booking changed concurrently, try again"}
}

// ConfirmBooking is called once payment for the booking has been captured.
// It is idempotent.
func (s *BookingService) ConfirmBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == models.BookingConfirmed {
		return b, nil
	}

	if b.Status == models.BookingPendingPayment {
		b, _, err = s.transition(ctx, id, models.BookingPending, func(b *models.Booking) error {
			b.PaymentStatus = models.PaymentPaid
			return nil
		})
		if b != nil && b.Status == models.BookingConfirmed {
			return b, nil
		}
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	b, changed, err := s.transition(ctx, id, models.BookingConfirmed, func(b *models.Booking) error {
		b.PaymentStatus = models.PaymentPaid
		b.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return b, nil
	}

	if _, err := s.ledger.Commit(ctx, b.ReservationToken); err != nil {
		return nil, fmt.Errorf("commit seats for booking %s: %w", id, err)
	}

	s.log.WithField("booking_id", b.ID).Info("booking confirmed")
	s.publishBooking(realtime.BookingConfirmed, b, "")
	return b, nil
}

// FailPayment cancels a booking whose payment was declined and frees its
// seats. Calling it on a booking that already ended is a no-op.
func (s *BookingService) FailPayment(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status.IsTerminal() {
		return b, nil
	}
	if b.Status != models.BookingPendingPayment {
		return nil, models.StateTransitionError{Entity: "booking", From: string(b.Status), To: string(models.BookingCancelled)}
	}

	now := s.now()
	role := models.RoleSystem
	b, changed, err := s.transition(ctx, id, models.BookingCancelled, func(b *models.Booking) error {
		if b.Status != models.BookingPendingPayment {
			return models.StateTransitionError{Entity: "booking", From: string(b.Status), To: string(models.BookingCancelled)}
		}
		b.PaymentStatus = models.PaymentFailed
		b.CancelledAt = &now
		b.CancelledByRole = &role
		b.CancelReason = &reason
		b.RefundAmount = 0
		b.RefundStatus = models.RefundNone
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.WithFields(logrus.Fields{"booking_id": b.ID, "reason": reason}).Info("booking cancelled after failed payment")
		s.publishBooking(realtime.BookingCancelled, b, reason)
		if err := s.releaseSeats(ctx, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// CancelBooking lets the passenger, the ride's driver or an admin cancel an
// active booking. Passenger cancellations are refunded by how early they
// are; driver and admin cancellations are refunded in full.
func (s *BookingService) CancelBooking(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	isPassenger := actor.IsPassenger() && actor.ID == b.PassengerID
	isDriver := actor.IsDriver() && actor.ID == b.DriverID
	if !isPassenger && !isDriver && !actor.Privileged() {
		return nil, models.AuthorizationError{Reason: "not allowed to cancel this booking"}
	}
	if b.Status.IsTerminal() {
		return nil, models.StateTransitionError{Entity: "booking", From: string(b.Status), To: string(models.BookingCancelled)}
	}

	return s.cancel(ctx, id, actor, reason, !isPassenger)
}

func (s *BookingService) cancel(ctx context.Context, id uuid.UUID, actor models.Actor, reason string, fullRefund bool) (*models.Booking, error) {
	now := s.now()
	b, changed, err := s.transition(ctx, id, models.BookingCancelled, func(b *models.Booking) error {
		applyCancellation(b, actor, reason, now)
		b.RefundAmount = 0
		if b.IsPaid() {
			if fullRefund {
				b.RefundAmount = b.TotalAmount
			} else {
				b.RefundAmount = RefundAmount(b.TotalAmount, b.DepartureTime, now)
			}
		}
		b.RefundStatus = models.RefundNone
		if b.RefundAmount > 0 {
			b.RefundStatus = models.RefundPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return b, nil
	}

	s.log.WithFields(logrus.Fields{
		"booking_id":    b.ID,
		"cancelled_by":  actor.String(),
		"refund_amount": b.RefundAmount,
	}).Info("booking cancelled")
	s.publishBooking(realtime.BookingCancelled, b, reason)
	if err := s.releaseSeats(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func applyCancellation(b *models.Booking, actor models.Actor, reason string, at time.Time) {
	role := actor.Role
	b.CancelledByRole = &role
	b.CancelledBy = nil
	if !actor.IsSystem() {
		by := actor.ID
		b.CancelledBy = &by
	}
	b.CancelledAt = &at
	b.CancelReason = nil
	if reason != "" {
		b.CancelReason = &reason
	}
}

// CancelForRide cancels every active booking of a cancelled ride with a
// full refund. It keeps going past individual failures and returns the
// bookings it did cancel along with the joined errors.
func (s *BookingService) CancelForRide(ctx context.Context, actor models.Actor, rideID uuid.UUID, reason string) ([]models.Booking, error) {
	bookings, err := s.store.Bookings().ListByRide(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("list bookings for ride %s: %w", rideID, err)
	}

	var cancelled []models.Booking
	var errs []error
	for _, b := range bookings {
		if !b.Status.IsActive() {
			continue
		}
		updated, err := s.cancel(ctx, b.ID, actor, reason, true)
		if err != nil {
			if models.IsStateTransition(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("cancel booking %s: %w", b.ID, err))
			continue
		}
		cancelled = append(cancelled, *updated)
	}
	return cancelled, errors.Join(errs...)
}

// RejectBooking is the admin path out of pending; paid bookings get a full
// refund.
func (s *BookingService) RejectBooking(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error) {
	if !actor.Privileged() {
		return nil, models.AuthorizationError{Reason: "only admins can reject bookings"}
	}
	now := s.now()
	b, changed, err := s.transition(ctx, id, models.BookingRejected, func(b *models.Booking) error {
		applyCancellation(b, actor, reason, now)
		b.RefundAmount = 0
		b.RefundStatus = models.RefundNone
		if b.IsPaid() {
			b.RefundAmount = b.TotalAmount
			b.RefundStatus = models.RefundPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.WithField("booking_id", b.ID).Info("booking rejected")
		s.publishBooking(realtime.BookingCancelled, b, reason)
		if err := s.releaseSeats(ctx, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ExpireStale moves pending-payment bookings past their deadline to expired
// and frees their seats. It returns how many bookings it expired.
func (s *BookingService) ExpireStale(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.store.Bookings().ListExpired(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired bookings: %w", err)
	}

	expired := 0
	var errs []error
	for _, candidate := range stale {
		b, changed, err := s.transition(ctx, candidate.ID, models.BookingExpired, func(b *models.Booking) error {
			if b.Status != models.BookingPendingPayment || now.Before(b.ExpiresAt) {
				return models.StateTransitionError{Entity: "booking", From: string(b.Status), To: string(models.BookingExpired)}
			}
			b.PaymentStatus = models.PaymentFailed
			return nil
		})
		if err != nil {
			if models.IsStateTransition(err) {
				continue
			}
			errs = append(errs, fmt.Errorf("expire booking %s: %w", candidate.ID, err))
			continue
		}
		if !changed {
			continue
		}
		expired++
		s.publishBooking(realtime.BookingCancelled, b, "payment window elapsed")
		if err := s.releaseSeats(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}

	if expired > 0 {
		s.log.WithField("count", expired).Info("expired unpaid bookings")
	}
	return expired, errors.Join(errs...)
}

// ReleaseOrphanedSeats frees the seats still held by bookings that already
// ended, which happens when a release failed after the status change. It
// returns how many reservations it released.
func (s *BookingService) ReleaseOrphanedSeats(ctx context.Context) (int, error) {
	orphaned, err := s.store.Bookings().ListEndedHoldingSeats(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list ended bookings holding seats: %w", err)
	}

	released := 0
	var errs []error
	for i := range orphaned {
		b := &orphaned[i]
		ok, err := s.ledger.Release(ctx, b.ReservationToken)
		if err != nil {
			errs = append(errs, fmt.Errorf("release seats for booking %s: %w", b.ID, err))
			continue
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		s.log.WithField("count", released).Warn("released seats held by ended bookings")
	}
	return released, errors.Join(errs...)
}

// CompleteBooking marks a confirmed booking as travelled and accrues the
// driver's earnings.
func (s *BookingService) CompleteBooking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && !(actor.IsDriver() && actor.ID == b.DriverID) {
		return nil, models.AuthorizationError{Reason: "only the ride's driver can complete a booking"}
	}
	if b.Status != models.BookingConfirmed {
		return nil, models.StateTransitionError{Entity: "booking", From: string(b.Status), To: string(models.BookingCompleted)}
	}

	ride, err := s.store.Rides().Get(ctx, b.RideID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !ride.HasDeparted(now) {
		return nil, models.ValidationError{Msg: "ride has not departed yet"}
	}
	if !b.IsPaid() {
		return nil, models.ValidationError{Msg: "booking is not paid"}
	}

	b, changed, err := s.transition(ctx, id, models.BookingCompleted, func(b *models.Booking) error {
		b.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return b, nil
	}

	if err := s.accrueEarning(ctx, b); err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Error("failed to record driver earning")
	}
	s.log.WithField("booking_id", b.ID).Info("booking completed")
	return b, nil
}

func (s *BookingService) accrueEarning(ctx context.Context, b *models.Booking) error {
	gross := b.TotalAmount - b.ServiceFee
	commission := int64(math.Round(float64(gross) * s.cfg.CommissionRate))
	return s.store.Earnings().Create(ctx, &models.DriverEarning{
		ID:         uuid.New(),
		BookingID:  b.ID,
		DriverID:   b.DriverID,
		Gross:      gross,
		Commission: commission,
		Net:        gross - commission,
		Currency:   b.Currency,
	})
}

// RecordLatePayment handles money that arrived for a booking that already
// ended. The booking stays where it is and the full amount is queued for
// refund.
func (s *BookingService) RecordLatePayment(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		b, err := s.store.Bookings().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !b.Status.IsTerminal() {
			return nil, models.StateTransitionError{Entity: "booking", From: string(b.Status), To: string(b.Status)}
		}
		if b.IsPaid() && b.RefundStatus != models.RefundNone {
			return b, nil
		}

		b.PaymentStatus = models.PaymentPaid
		b.RefundAmount = b.TotalAmount
		b.RefundStatus = models.RefundPending
		err = s.store.Bookings().Update(ctx, b, b.Status)
		if errors.Is(err, models.ErrStaleWrite) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.log.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"status":     b.Status,
			"amount":     b.TotalAmount,
		}).Warn("payment arrived for a closed booking, full refund queued")
		return b, nil
	}
	return nil, models.ConflictError{Msg: "booking changed concurrently, try again"}
}

// MarkRefundProcessed records that finance paid out a pending refund.
func (s *BookingService) MarkRefundProcessed(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	if !actor.Privileged() {
		return nil, models.AuthorizationError{Reason: "only admins can settle refunds"}
	}
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.RefundStatus == models.RefundProcessed {
		return b, nil
	}
	if b.RefundStatus != models.RefundPending {
		return nil, models.ConflictError{Msg: "booking has no pending refund"}
	}

	b.RefundStatus = models.RefundProcessed
	b.PaymentStatus = models.PaymentRefunded
	if err := s.store.Bookings().Update(ctx, b, b.Status); err != nil {
		if errors.Is(err, models.ErrStaleWrite) {
			return nil, models.ConflictError{Msg: "booking changed concurrently, try again"}
		}
		return nil, err
	}
	return b, nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && actor.ID != b.PassengerID && actor.ID != b.DriverID {
		return nil, models.AuthorizationError{Reason: "not allowed to view this booking"}
	}
	return b, nil
}

// GetBookingInternal is used by the payment orchestrator, which acts on
// behalf of the platform.
func (s *BookingService) GetBookingInternal(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.store.Bookings().Get(ctx, id)
}

func (s *BookingService) ListPassengerBookings(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if !actor.IsPassenger() {
		return nil, models.AuthorizationError{Reason: "only passengers have bookings"}
	}
	return s.store.Bookings().ListByPassenger(ctx, actor.ID)
}

func (s *BookingService) ListRideBookings(ctx context.Context, actor models.Actor, rideID uuid.UUID) ([]models.Booking, error) {
	ride, err := s.store.Rides().Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && !(actor.IsDriver() && actor.ID == ride.DriverID) {
		return nil, models.AuthorizationError{Reason: "only the ride's driver can list its bookings"}
	}
	return s.store.Bookings().ListByRide(ctx, rideID)
}

func (s *BookingService) ListDriverEarnings(ctx context.Context, actor models.Actor) ([]models.DriverEarning, error) {
	if !actor.IsDriver() {
		return nil, models.AuthorizationError{Reason: "only drivers have earnings"}
	}
	return s.store.Earnings().ListByDriver(ctx, actor.ID)
}

// releaseSeats hands a finished booking's seats back. The booking has
// already moved, so a failure here leaves a held reservation behind for
// ReleaseOrphanedSeats to retry.
func (s *BookingService) releaseSeats(ctx context.Context, b *models.Booking) error {
	if _, err := s.ledger.Release(ctx, b.ReservationToken); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"booking_id":  b.ID,
			"reservation": b.ReservationToken,
		}).Error("failed to release seats")
		return fmt.Errorf("release seats for booking %s: %w", b.ID, err)
	}
	return nil
}

func (s *BookingService) publishBooking(eventType realtime.EventType, b *models.Booking, reason string) {
	s.events.Publish(eventType, realtime.BookingPayload{
		BookingID:     b.ID,
		RideID:        b.RideID,
		PassengerID:   b.PassengerID,
		DriverID:      b.DriverID,
		Seats:         b.Seats,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
		TotalAmount:   b.TotalAmount,
		RefundAmount:  b.RefundAmount,
		Currency:      b.Currency,
		Reason:        reason,
	}, realtime.UserChannel(b.PassengerID), realtime.UserChannel(b.DriverID), realtime.RideChannel(b.RideID))
}
