package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/seatshare/ledger"
	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	nairobi = models.Place{Address: "Kencom, Nairobi", Lat: -1.2864, Lng: 36.8172}
	nakuru  = models.Place{Address: "Nakuru Town", Lat: -0.3031, Lng: 36.0800}
	mombasa = models.Place{Address: "Mombasa", Lat: -4.0435, Lng: 39.6682}
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedEvent struct {
	Type     realtime.EventType
	Data     any
	Channels []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(eventType realtime.EventType, data any, channels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Data: data, Channels: channels})
}

func (p *recordingPublisher) ofType(eventType realtime.EventType) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	ctx      context.Context
	store    *store.MemoryStore
	events   *recordingPublisher
	clock    *testClock
	bookings *BookingService
	rides    *RideService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	events := &recordingPublisher{}
	clock := &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	kyc := NewStoreKYC(st.Users())

	bookings := NewBookingService(st, ledger.New(st.Seats(), quietLogger()), kyc, events, BookingConfig{
		PaymentTTL:     15 * time.Minute,
		CommissionRate: 0.1,
	}, quietLogger())
	bookings.now = clock.Now

	rides := NewRideService(st, bookings, kyc, StraightLineGeocoder{}, events, RideConfig{Currency: "KES"}, quietLogger())
	rides.now = clock.Now

	return &fixture{
		ctx:      context.Background(),
		store:    st,
		events:   events,
		clock:    clock,
		bookings: bookings,
		rides:    rides,
	}
}

func (f *fixture) user(t *testing.T, role models.Role, kyc models.KYCStatus) models.Actor {
	t.Helper()
	user := &models.User{ID: uuid.New(), FullName: "Test " + string(role), Role: role, KYCStatus: kyc}
	if err := f.store.Users().Upsert(f.ctx, user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return models.Actor{ID: user.ID, Role: role}
}

func (f *fixture) passenger(t *testing.T) models.Actor {
	return f.user(t, models.RolePassenger, models.KYCApproved)
}

func (f *fixture) driver(t *testing.T) models.Actor {
	return f.user(t, models.RoleDriver, models.KYCApproved)
}

func (f *fixture) publishRide(t *testing.T, driver models.Actor, seats int, price int64, departIn time.Duration) *models.Ride {
	t.Helper()
	ride, err := f.rides.CreateRide(f.ctx, driver, CreateRideInput{
		Origin:        nairobi,
		Destination:   nakuru,
		DepartureTime: f.clock.Now().Add(departIn),
		Seats:         seats,
		PricePerSeat:  price,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func (f *fixture) book(t *testing.T, passenger models.Actor, rideID uuid.UUID, seats int) *models.Booking {
	t.Helper()
	result, err := f.bookings.CreateBooking(f.ctx, passenger, CreateBookingInput{
		RideID:        rideID,
		Seats:         seats,
		PaymentMethod: models.ProviderMpesa,
		PayerPhone:    "0712345678",
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return result.Booking
}

func (f *fixture) confirmedBooking(t *testing.T, passenger models.Actor, rideID uuid.UUID, seats int) *models.Booking {
	t.Helper()
	b := f.book(t, passenger, rideID, seats)
	confirmed, err := f.bookings.ConfirmBooking(f.ctx, b.ID)
	if err != nil {
		t.Fatalf("confirm booking: %v", err)
	}
	return confirmed
}

func (f *fixture) booking(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	b, err := f.store.Bookings().Get(f.ctx, id)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	return b
}

func (f *fixture) seatsBooked(t *testing.T, rideID uuid.UUID) int {
	t.Helper()
	ride, err := f.store.Rides().Get(f.ctx, rideID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	return ride.SeatsBooked
}

// forceStatus moves a booking directly in the store, for states the public
// operations only reach through an external review step.
func (f *fixture) forceStatus(t *testing.T, id uuid.UUID, to models.BookingStatus, paid bool) {
	t.Helper()
	b := f.booking(t, id)
	from := b.Status
	b.Status = to
	if paid {
		b.PaymentStatus = models.PaymentPaid
	}
	if err := f.store.Bookings().Update(f.ctx, b, from); err != nil {
		t.Fatalf("force status: %v", err)
	}
}
