package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type RideConfig struct {
	Currency        string
	DefaultRadiusKm float64
	MaxRadiusKm     float64
	// Location decides what "a day" means for searches.
	Location *time.Location
	// StartWindow is how long before departure a driver may start a ride.
	StartWindow     time.Duration
	GeocodeTimeout  time.Duration
	MaxSeatsPerRide int
}

type CreateRideInput struct {
	Origin        models.Place
	Destination   models.Place
	DepartureTime time.Time
	Seats         int
	PricePerSeat  int64
}

type SearchQuery struct {
	Origin      models.Point
	Destination *models.Point
	Date        time.Time
	SeatsNeeded int
	MaxPrice    *int64
	RadiusKm    float64
}

// RideResult is a search hit with the passenger's distance to the pickup.
type RideResult struct {
	models.Ride
	FreeSeats        int     `json:"free_seats"`
	OriginDistanceKm float64 `json:"origin_distance_km"`
}

type LocationUpdate struct {
	Lat      float64
	Lng      float64
	Heading  *float64
	SpeedKmh *float64
}

// RideService is the ride catalog: drivers publish rides and move them
// through their lifecycle, passengers search them.
type RideService struct {
	store    store.Store
	bookings *BookingService
	kyc      KYCChecker
	geocoder Geocoder
	events   realtime.Publisher
	cfg      RideConfig
	now      func() time.Time
	log      *logrus.Entry
}

func NewRideService(st store.Store, bookings *BookingService, kyc KYCChecker, geocoder Geocoder, events realtime.Publisher, cfg RideConfig, log *logrus.Logger) *RideService {
	if cfg.Currency == "" {
		cfg.Currency = "KES"
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = 10
	}
	if cfg.MaxRadiusKm <= 0 {
		cfg.MaxRadiusKm = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.StartWindow <= 0 {
		cfg.StartWindow = time.Hour
	}
	if cfg.GeocodeTimeout <= 0 {
		cfg.GeocodeTimeout = 3 * time.Second
	}
	if cfg.MaxSeatsPerRide <= 0 {
		cfg.MaxSeatsPerRide = 14
	}
	return &RideService{
		store:    st,
		bookings: bookings,
		kyc:      kyc,
		geocoder: geocoder,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
		log:      log.WithField("component", "ride_service"),
	}
}

func (s *RideService) CreateRide(ctx context.Context, actor models.Actor, in CreateRideInput) (*models.Ride, error) {
	if !actor.IsDriver() {
		return nil, models.AuthorizationError{Reason: "only drivers can publish rides"}
	}
	if err := s.validateRide(in); err != nil {
		return nil, err
	}

	approved, err := s.kyc.IsApproved(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("check kyc: %w", err)
	}
	if !approved {
		return nil, models.ErrKYCRequired
	}

	ride := &models.Ride{
		ID:             uuid.New(),
		DriverID:       actor.ID,
		Origin:         in.Origin,
		Destination:    in.Destination,
		DepartureTime:  in.DepartureTime.UTC(),
		SeatsAvailable: in.Seats,
		PricePerSeat:   in.PricePerSeat,
		Currency:       s.cfg.Currency,
		Status:         models.RideScheduled,
	}

	if s.geocoder != nil {
		gctx, cancel := context.WithTimeout(ctx, s.cfg.GeocodeTimeout)
		estimate, err := s.geocoder.Estimate(gctx, in.Origin.Point(), in.Destination.Point())
		cancel()
		if err != nil {
			s.log.WithError(err).Warn("route estimate unavailable, using straight line")
			estimate, _ = StraightLineGeocoder{}.Estimate(ctx, in.Origin.Point(), in.Destination.Point())
		}
		ride.EstimatedDistanceKm = estimate.DistanceKm
		ride.EstimatedDurationMin = estimate.DurationMin
	}

	if err := s.store.Rides().Create(ctx, ride); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"ride_id":   ride.ID,
		"driver_id": ride.DriverID,
		"seats":     ride.SeatsAvailable,
	}).Info("ride published")
	return ride, nil
}

func (s *RideService) validateRide(in CreateRideInput) error {
	if !in.Origin.Point().Valid() {
		return models.ValidationError{Field: "origin", Msg: "has invalid coordinates"}
	}
	if !in.Destination.Point().Valid() {
		return models.ValidationError{Field: "destination", Msg: "has invalid coordinates"}
	}
	if in.Origin.Point() == in.Destination.Point() {
		return models.ValidationError{Field: "destination", Msg: "must differ from origin"}
	}
	if !in.DepartureTime.After(s.now()) {
		return models.ValidationError{Field: "departure_time", Msg: "must be in the future"}
	}
	if in.Seats < 1 || in.Seats > s.cfg.MaxSeatsPerRide {
		return models.ValidationError{Field: "seats_available", Msg: fmt.Sprintf("must be between 1 and %d", s.cfg.MaxSeatsPerRide)}
	}
	if in.PricePerSeat < 0 {
		return models.ValidationError{Field: "price_per_seat", Msg: "must not be negative"}
	}
	return nil
}

// SearchRides returns scheduled rides leaving on the query's day from near
// its origin, earliest departure first. Rides leaving at the same time are
// ordered nearest first.
func (s *RideService) SearchRides(ctx context.Context, q SearchQuery) ([]RideResult, error) {
	if !q.Origin.Valid() {
		return nil, models.ValidationError{Field: "origin", Msg: "has invalid coordinates"}
	}
	if q.Destination != nil && !q.Destination.Valid() {
		return nil, models.ValidationError{Field: "destination", Msg: "has invalid coordinates"}
	}
	if q.SeatsNeeded < 1 {
		return nil, models.ValidationError{Field: "seats", Msg: "must be at least 1"}
	}
	if q.Date.IsZero() {
		return nil, models.ValidationError{Field: "date", Msg: "is required"}
	}
	radius := q.RadiusKm
	if radius <= 0 {
		radius = s.cfg.DefaultRadiusKm
	}
	if radius > s.cfg.MaxRadiusKm {
		return nil, models.ValidationError{Field: "radius_km", Msg: fmt.Sprintf("must not exceed %.0f", s.cfg.MaxRadiusKm)}
	}

	day := q.Date.In(s.cfg.Location)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.cfg.Location)
	to := from.AddDate(0, 0, 1)
	if now := s.now(); from.Before(now) {
		from = now
	}
	if !from.Before(to) {
		return []RideResult{}, nil
	}

	rides, err := s.store.Rides().Search(ctx, store.RideSearch{
		From:         from,
		To:           to,
		MinFreeSeats: q.SeatsNeeded,
		MaxPrice:     q.MaxPrice,
		OriginBox:    boundingBox(q.Origin, radius),
	})
	if err != nil {
		return nil, fmt.Errorf("search rides: %w", err)
	}

	results := make([]RideResult, 0, len(rides))
	for _, ride := range rides {
		distance := DistanceKm(q.Origin, ride.Origin.Point())
		if distance > radius {
			continue
		}
		if q.Destination != nil && DistanceKm(*q.Destination, ride.Destination.Point()) > radius {
			continue
		}
		results = append(results, RideResult{Ride: ride, FreeSeats: ride.FreeSeats(), OriginDistanceKm: distance})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].DepartureTime.Equal(results[j].DepartureTime) {
			return results[i].DepartureTime.Before(results[j].DepartureTime)
		}
		return results[i].OriginDistanceKm < results[j].OriginDistanceKm
	})
	return results, nil
}

func (s *RideService) GetRide(ctx context.Context, id uuid.UUID) (*models.Ride, error) {
	return s.store.Rides().Get(ctx, id)
}

func (s *RideService) ListDriverRides(ctx context.Context, actor models.Actor) ([]models.Ride, error) {
	if !actor.IsDriver() {
		return nil, models.AuthorizationError{Reason: "only drivers have rides"}
	}
	return s.store.Rides().ListByDriver(ctx, actor.ID)
}

func (s *RideService) ownedRide(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Ride, error) {
	ride, err := s.store.Rides().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && !(actor.IsDriver() && actor.ID == ride.DriverID) {
		return nil, models.AuthorizationError{Reason: "only the ride's driver can do this"}
	}
	return ride, nil
}

func (s *RideService) setStatus(ctx context.Context, ride *models.Ride, to models.RideStatus, mutate func(*models.Ride)) error {
	from := ride.Status
	ride.Status = to
	if mutate != nil {
		mutate(ride)
	}
	err := s.store.Rides().UpdateStatus(ctx, ride, from)
	if errors.Is(err, models.ErrStaleWrite) {
		return models.ConflictError{Msg: "ride changed concurrently, try again"}
	}
	return err
}

// CancelRide cancels a scheduled or running ride and every active booking
// on it. Paid passengers are refunded in full.
func (s *RideService) CancelRide(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Ride, []models.Booking, error) {
	ride, err := s.ownedRide(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	if ride.Status != models.RideScheduled && ride.Status != models.RideActive {
		return nil, nil, models.StateTransitionError{Entity: "ride", From: string(ride.Status), To: string(models.RideCancelled)}
	}

	now := s.now()
	err = s.setStatus(ctx, ride, models.RideCancelled, func(r *models.Ride) {
		r.CancelledAt = &now
		if reason != "" {
			r.CancelReason = &reason
		}
	})
	if err != nil {
		return nil, nil, err
	}

	cancelled, cascadeErr := s.bookings.CancelForRide(ctx, actor, ride.ID, reason)
	if cascadeErr != nil {
		s.log.WithError(cascadeErr).WithField("ride_id", ride.ID).Error("some bookings could not be cancelled with their ride")
	}

	channels := []string{realtime.RideChannel(ride.ID), realtime.UserChannel(ride.DriverID)}
	for _, b := range cancelled {
		channels = append(channels, realtime.UserChannel(b.PassengerID))
	}
	s.events.Publish(realtime.RideCancelled, ridePayload(ride, reason), channels...)

	s.log.WithFields(logrus.Fields{
		"ride_id":  ride.ID,
		"bookings": len(cancelled),
	}).Info("ride cancelled")
	return ride, cancelled, cascadeErr
}

func (s *RideService) StartRide(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Ride, error) {
	ride, err := s.ownedRide(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideScheduled {
		return nil, models.StateTransitionError{Entity: "ride", From: string(ride.Status), To: string(models.RideActive)}
	}
	now := s.now()
	if now.Before(ride.DepartureTime.Add(-s.cfg.StartWindow)) {
		return nil, models.ValidationError{Msg: "ride cannot start this early"}
	}

	if err := s.setStatus(ctx, ride, models.RideActive, func(r *models.Ride) { r.StartedAt = &now }); err != nil {
		return nil, err
	}
	s.events.Publish(realtime.RideUpdated, ridePayload(ride, ""), realtime.RideChannel(ride.ID))
	return ride, nil
}

// CompleteRide closes a ride after departure and completes its confirmed
// bookings. Bookings still waiting on payment block completion.
func (s *RideService) CompleteRide(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Ride, error) {
	ride, err := s.ownedRide(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if ride.Status != models.RideScheduled && ride.Status != models.RideActive {
		return nil, models.StateTransitionError{Entity: "ride", From: string(ride.Status), To: string(models.RideCompleted)}
	}
	now := s.now()
	if !ride.HasDeparted(now) {
		return nil, models.ValidationError{Msg: "ride has not departed yet"}
	}

	bookings, err := s.store.Bookings().ListByRide(ctx, ride.ID)
	if err != nil {
		return nil, fmt.Errorf("list bookings for ride %s: %w", ride.ID, err)
	}
	for _, b := range bookings {
		if b.Status == models.BookingPendingPayment || b.Status == models.BookingPending {
			return nil, models.ConflictError{Msg: "ride still has bookings awaiting payment or review"}
		}
	}
	for _, b := range bookings {
		if b.Status != models.BookingConfirmed {
			continue
		}
		if _, err := s.bookings.CompleteBooking(ctx, actor, b.ID); err != nil {
			return nil, fmt.Errorf("complete booking %s: %w", b.ID, err)
		}
	}

	if err := s.setStatus(ctx, ride, models.RideCompleted, func(r *models.Ride) { r.CompletedAt = &now }); err != nil {
		return nil, err
	}
	s.events.Publish(realtime.RideUpdated, ridePayload(ride, ""), realtime.RideChannel(ride.ID))
	s.log.WithField("ride_id", ride.ID).Info("ride completed")
	return ride, nil
}

func (s *RideService) UpdateDriverLocation(ctx context.Context, actor models.Actor, id uuid.UUID, loc LocationUpdate) error {
	if !(models.Point{Lat: loc.Lat, Lng: loc.Lng}).Valid() {
		return models.ValidationError{Field: "location", Msg: "has invalid coordinates"}
	}
	ride, err := s.store.Rides().Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsDriver() || actor.ID != ride.DriverID {
		return models.AuthorizationError{Reason: "only the ride's driver can share its location"}
	}
	if ride.Status != models.RideScheduled && ride.Status != models.RideActive {
		return models.ConflictError{Msg: "ride is no longer running"}
	}

	s.events.Publish(realtime.DriverLocationUpdate, realtime.LocationPayload{
		RideID:   ride.ID,
		DriverID: ride.DriverID,
		Lat:      loc.Lat,
		Lng:      loc.Lng,
		Heading:  loc.Heading,
		SpeedKmh: loc.SpeedKmh,
	}, realtime.RideChannel(ride.ID))
	return nil
}

func ridePayload(ride *models.Ride, reason string) realtime.RidePayload {
	return realtime.RidePayload{
		RideID:        ride.ID,
		DriverID:      ride.DriverID,
		Status:        string(ride.Status),
		SeatsBooked:   ride.SeatsBooked,
		DepartureTime: ride.DepartureTime,
		Reason:        reason,
	}
}
