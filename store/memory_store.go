package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. One mutex guards all tables, so
// the seat check-and-increment in Reserve is atomic with respect to every
// other reader and writer.
type MemoryStore struct {
	mu           sync.RWMutex
	now          func() time.Time
	rides        map[uuid.UUID]models.Ride
	bookings     map[uuid.UUID]models.Booking
	intents      map[uuid.UUID]models.PaymentIntent
	reservations map[uuid.UUID]models.SeatReservation
	users        map[uuid.UUID]models.User
	earnings     map[uuid.UUID]models.DriverEarning
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:          time.Now,
		rides:        make(map[uuid.UUID]models.Ride),
		bookings:     make(map[uuid.UUID]models.Booking),
		intents:      make(map[uuid.UUID]models.PaymentIntent),
		reservations: make(map[uuid.UUID]models.SeatReservation),
		users:        make(map[uuid.UUID]models.User),
		earnings:     make(map[uuid.UUID]models.DriverEarning),
	}
}

func (s *MemoryStore) Rides() RideRepository            { return memRides{s} }
func (s *MemoryStore) Seats() SeatRepository            { return memSeats{s} }
func (s *MemoryStore) Bookings() BookingRepository      { return memBookings{s} }
func (s *MemoryStore) Intents() PaymentIntentRepository { return memIntents{s} }
func (s *MemoryStore) Users() UserRepository            { return memUsers{s} }
func (s *MemoryStore) Earnings() EarningRepository      { return memEarnings{s} }

type memRides struct{ s *MemoryStore }

func (r memRides) Create(_ context.Context, ride *models.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ride.ID == uuid.Nil {
		ride.ID = uuid.New()
	}
	if _, exists := r.s.rides[ride.ID]; exists {
		return models.ConflictError{Msg: fmt.Sprintf("ride %s already exists", ride.ID)}
	}
	now := r.s.now()
	ride.CreatedAt, ride.UpdatedAt = now, now
	r.s.rides[ride.ID] = *ride
	return nil
}

func (r memRides) Get(_ context.Context, id uuid.UUID) (*models.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ride, ok := r.s.rides[id]
	if !ok {
		return nil, models.NotFoundError{Resource: "ride", ID: id.String()}
	}
	return &ride, nil
}

func (r memRides) Search(_ context.Context, q RideSearch) ([]models.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Ride
	for _, ride := range r.s.rides {
		if ride.Status != models.RideScheduled {
			continue
		}
		if ride.DepartureTime.Before(q.From) || !ride.DepartureTime.Before(q.To) {
			continue
		}
		if ride.FreeSeats() < q.MinFreeSeats {
			continue
		}
		if q.MaxPrice != nil && ride.PricePerSeat > *q.MaxPrice {
			continue
		}
		if q.OriginBox != nil && !q.OriginBox.Contains(ride.Origin.Point()) {
			continue
		}
		out = append(out, ride)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return out, nil
}

func (r memRides) ListByDriver(_ context.Context, driverID uuid.UUID) ([]models.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Ride
	for _, ride := range r.s.rides {
		if ride.DriverID == driverID {
			out = append(out, ride)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.After(out[j].DepartureTime) })
	return out, nil
}

func (r memRides) UpdateStatus(_ context.Context, ride *models.Ride, from models.RideStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.rides[ride.ID]
	if !ok {
		return models.NotFoundError{Resource: "ride", ID: ride.ID.String()}
	}
	if stored.Status != from {
		return models.ErrStaleWrite
	}
	stored.Status = ride.Status
	stored.CancelReason = ride.CancelReason
	stored.CancelledAt = ride.CancelledAt
	stored.StartedAt = ride.StartedAt
	stored.CompletedAt = ride.CompletedAt
	stored.UpdatedAt = r.s.now()
	r.s.rides[ride.ID] = stored
	return nil
}

type memSeats struct{ s *MemoryStore }

func (r memSeats) Reserve(_ context.Context, res *models.SeatReservation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride, ok := r.s.rides[res.RideID]
	if !ok {
		return models.NotFoundError{Resource: "ride", ID: res.RideID.String()}
	}
	if ride.Status != models.RideScheduled {
		return models.ConflictError{Msg: fmt.Sprintf("ride is %s and no longer accepts bookings", ride.Status)}
	}
	if ride.FreeSeats() < res.Seats {
		return models.ErrInsufficientSeats
	}
	ride.SeatsBooked += res.Seats
	r.s.rides[ride.ID] = ride

	res.CreatedAt = r.s.now()
	r.s.reservations[res.Token] = *res
	return nil
}

func (r memSeats) Commit(_ context.Context, token uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[token]
	if !ok {
		return false, models.NotFoundError{Resource: "seat reservation", ID: token.String()}
	}
	switch res.Status {
	case models.ReservationCommitted:
		return false, nil
	case models.ReservationReleased:
		return false, models.StateTransitionError{Entity: "seat reservation", From: string(res.Status), To: string(models.ReservationCommitted)}
	}
	res.Status = models.ReservationCommitted
	res.CommittedAt = &at
	r.s.reservations[token] = res
	return true, nil
}

func (r memSeats) Release(_ context.Context, token uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	res, ok := r.s.reservations[token]
	if !ok {
		return false, models.NotFoundError{Resource: "seat reservation", ID: token.String()}
	}
	if res.Status == models.ReservationReleased {
		return false, nil
	}
	ride, ok := r.s.rides[res.RideID]
	if !ok {
		return false, models.NotFoundError{Resource: "ride", ID: res.RideID.String()}
	}
	if ride.SeatsBooked < res.Seats {
		return false, models.InvariantViolation{Msg: fmt.Sprintf("releasing %d seats from ride %s would make seats_booked negative", res.Seats, res.RideID)}
	}
	ride.SeatsBooked -= res.Seats
	r.s.rides[ride.ID] = ride

	res.Status = models.ReservationReleased
	res.ReleasedAt = &at
	r.s.reservations[token] = res
	return true, nil
}

func (r memSeats) GetReservation(_ context.Context, token uuid.UUID) (*models.SeatReservation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.reservations[token]
	if !ok {
		return nil, models.NotFoundError{Resource: "seat reservation", ID: token.String()}
	}
	return &res, nil
}

type memBookings struct{ s *MemoryStore }

func (r memBookings) Create(_ context.Context, booking *models.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.bookings {
		if existing.PassengerID == booking.PassengerID && existing.RideID == booking.RideID && existing.Status.IsActive() {
			return models.ErrDuplicateBooking
		}
	}
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	now := r.s.now()
	booking.CreatedAt, booking.UpdatedAt = now, now
	r.s.bookings[booking.ID] = *booking
	return nil
}

func (r memBookings) Get(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	booking, ok := r.s.bookings[id]
	if !ok {
		return nil, models.NotFoundError{Resource: "booking", ID: id.String()}
	}
	return &booking, nil
}

func (r memBookings) FindActive(_ context.Context, passengerID, rideID uuid.UUID) (*models.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, booking := range r.s.bookings {
		if booking.PassengerID == passengerID && booking.RideID == rideID && booking.Status.IsActive() {
			return &booking, nil
		}
	}
	return nil, nil
}

func (r memBookings) ListByRide(_ context.Context, rideID uuid.UUID) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool { return b.RideID == rideID }, func(a, b models.Booking) bool {
		return a.CreatedAt.Before(b.CreatedAt)
	}, 0), nil
}

func (r memBookings) ListByPassenger(_ context.Context, passengerID uuid.UUID) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool { return b.PassengerID == passengerID }, func(a, b models.Booking) bool {
		return a.DepartureTime.After(b.DepartureTime)
	}, 0), nil
}

func (r memBookings) ListExpired(_ context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		return b.Status == models.BookingPendingPayment && !b.ExpiresAt.After(now)
	}, func(a, b models.Booking) bool {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}, limit), nil
}

func (r memBookings) ListEndedHoldingSeats(_ context.Context, limit int) ([]models.Booking, error) {
	return r.filter(func(b models.Booking) bool {
		res, ok := r.s.reservations[b.ReservationToken]
		return b.Status.IsTerminal() && ok && res.Status == models.ReservationHeld
	}, func(a, b models.Booking) bool {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}, limit), nil
}

func (r memBookings) filter(keep func(models.Booking) bool, less func(a, b models.Booking) bool, limit int) []models.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.Booking
	for _, booking := range r.s.bookings {
		if keep(booking) {
			out = append(out, booking)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r memBookings) Update(_ context.Context, booking *models.Booking, from models.BookingStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.bookings[booking.ID]
	if !ok {
		return models.NotFoundError{Resource: "booking", ID: booking.ID.String()}
	}
	if stored.Status != from {
		return models.ErrStaleWrite
	}
	booking.CreatedAt = stored.CreatedAt
	booking.UpdatedAt = r.s.now()
	r.s.bookings[booking.ID] = *booking
	return nil
}

type memIntents struct{ s *MemoryStore }

func (r memIntents) Create(_ context.Context, intent *models.PaymentIntent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	now := r.s.now()
	intent.CreatedAt, intent.UpdatedAt = now, now
	r.s.intents[intent.ID] = *intent
	return nil
}

func (r memIntents) Get(_ context.Context, id uuid.UUID) (*models.PaymentIntent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	intent, ok := r.s.intents[id]
	if !ok {
		return nil, models.NotFoundError{Resource: "payment intent", ID: id.String()}
	}
	return &intent, nil
}

func (r memIntents) FindByProviderReference(_ context.Context, provider models.PaymentProvider, ref string) (*models.PaymentIntent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, intent := range r.s.intents {
		if intent.Provider != provider {
			continue
		}
		if intent.ProviderRef() == ref || intent.Reference == ref {
			return &intent, nil
		}
	}
	return nil, models.NotFoundError{Resource: "payment intent", ID: ref}
}

func (r memIntents) ListUnsettled(_ context.Context, updatedBefore time.Time, limit int) ([]models.PaymentIntent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.PaymentIntent
	for _, intent := range r.s.intents {
		if intent.Status == models.IntentPending && intent.ProviderReference != nil && !intent.UpdatedAt.After(updatedBefore) {
			out = append(out, intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memIntents) Update(_ context.Context, intent *models.PaymentIntent, from models.IntentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.intents[intent.ID]
	if !ok {
		return models.NotFoundError{Resource: "payment intent", ID: intent.ID.String()}
	}
	if stored.Status != from {
		return models.ErrStaleWrite
	}
	intent.CreatedAt = stored.CreatedAt
	intent.UpdatedAt = r.s.now()
	r.s.intents[intent.ID] = *intent
	return nil
}

type memUsers struct{ s *MemoryStore }

func (r memUsers) Get(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, models.NotFoundError{Resource: "user", ID: id.String()}
	}
	return &user, nil
}

func (r memUsers) Upsert(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if existing, ok := r.s.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	return nil
}

type memEarnings struct{ s *MemoryStore }

func (r memEarnings) Create(_ context.Context, earning *models.DriverEarning) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.earnings {
		if existing.BookingID == earning.BookingID {
			return nil
		}
	}
	if earning.ID == uuid.Nil {
		earning.ID = uuid.New()
	}
	earning.CreatedAt = r.s.now()
	r.s.earnings[earning.ID] = *earning
	return nil
}

func (r memEarnings) ListByDriver(_ context.Context, driverID uuid.UUID) ([]models.DriverEarning, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.DriverEarning
	for _, earning := range r.s.earnings {
		if earning.DriverID == driverID {
			out = append(out, earning)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
