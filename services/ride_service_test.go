package services

import (
	"testing"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/google/uuid"
)

func (f *fixture) createRide(t *testing.T, driver models.Actor, origin, destination models.Place, departure time.Time, seats int, price int64) *models.Ride {
	t.Helper()
	ride, err := f.rides.CreateRide(f.ctx, driver, CreateRideInput{
		Origin:        origin,
		Destination:   destination,
		DepartureTime: departure,
		Seats:         seats,
		PricePerSeat:  price,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func TestCreateRideValidation(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t)
	later := f.clock.Now().Add(3 * time.Hour)

	cases := map[string]CreateRideInput{
		"past departure":  {Origin: nairobi, Destination: nakuru, DepartureTime: f.clock.Now().Add(-time.Minute), Seats: 3, PricePerSeat: 100},
		"no seats":        {Origin: nairobi, Destination: nakuru, DepartureTime: later, Seats: 0, PricePerSeat: 100},
		"negative price":  {Origin: nairobi, Destination: nakuru, DepartureTime: later, Seats: 3, PricePerSeat: -1},
		"same endpoints":  {Origin: nairobi, Destination: nairobi, DepartureTime: later, Seats: 3, PricePerSeat: 100},
		"bad coordinates": {Origin: models.Place{Lat: -91}, Destination: nakuru, DepartureTime: later, Seats: 3, PricePerSeat: 100},
		"too many seats":  {Origin: nairobi, Destination: nakuru, DepartureTime: later, Seats: 40, PricePerSeat: 100},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.rides.CreateRide(f.ctx, driver, in); !models.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateRideRequiresApprovedDriver(t *testing.T) {
	f := newFixture(t)
	in := CreateRideInput{Origin: nairobi, Destination: nakuru, DepartureTime: f.clock.Now().Add(time.Hour), Seats: 3, PricePerSeat: 100}

	if _, err := f.rides.CreateRide(f.ctx, f.passenger(t), in); !models.IsAuthorization(err) {
		t.Fatalf("expected passengers to be refused, got %v", err)
	}
	unverified := f.user(t, models.RoleDriver, models.KYCRejected)
	if _, err := f.rides.CreateRide(f.ctx, unverified, in); models.ErrorCode(err) != models.CodeKYCRequired {
		t.Fatalf("expected kyc_required, got %v", err)
	}

	ride, err := f.rides.CreateRide(f.ctx, f.driver(t), in)
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	if ride.Status != models.RideScheduled || ride.SeatsBooked != 0 || ride.Currency != "KES" {
		t.Fatalf("unexpected new ride %+v", ride)
	}
	if ride.EstimatedDistanceKm < 130 || ride.EstimatedDurationMin <= 0 {
		t.Fatalf("expected a route estimate, got %.1f km / %.1f min", ride.EstimatedDistanceKm, ride.EstimatedDurationMin)
	}
}

func TestSearchRidesOrdersByDepartureBeforeDistance(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t)
	day := f.clock.Now()
	at := func(hour int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
	}
	parklands := models.Place{Address: "Parklands", Lat: -1.2414, Lng: 36.8172}

	atOriginLate := f.createRide(t, driver, nairobi, nakuru, at(15), 3, 1500)
	fiveKmEarly := f.createRide(t, driver, parklands, nakuru, at(9), 3, 1500)
	fiveKmNoon := f.createRide(t, driver, parklands, nakuru, at(12), 3, 1500)
	atOriginNoon := f.createRide(t, driver, nairobi, nakuru, at(12), 3, 1500)

	results, err := f.rides.SearchRides(f.ctx, SearchQuery{Origin: nairobi.Point(), Date: day, SeatsNeeded: 1, RadiusKm: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []uuid.UUID{fiveKmEarly.ID, atOriginNoon.ID, fiveKmNoon.ID, atOriginLate.ID}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, id := range want {
		if results[i].ID != id {
			t.Fatalf("result %d: expected %s, got %s", i, id, results[i].ID)
		}
	}
}

func TestSearchRidesFiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t)
	day := f.clock.Now()
	at := func(hour int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
	}

	westlands := models.Place{Address: "Upper Hill", Lat: -1.2900, Lng: 36.8200}
	parklands := models.Place{Address: "Parklands", Lat: -1.2414, Lng: 36.8172}
	thika := models.Place{Address: "Thika", Lat: -1.0333, Lng: 37.0693}

	exact := f.createRide(t, driver, nairobi, nakuru, at(12), 3, 1500)
	near := f.createRide(t, driver, westlands, nakuru, at(10), 3, 1500)
	fiveKm := f.createRide(t, driver, parklands, nakuru, at(9), 3, 1500)
	f.createRide(t, driver, thika, nakuru, at(10), 3, 1500)
	f.createRide(t, driver, nairobi, nakuru, at(10).AddDate(0, 0, 1), 3, 1500)
	toMombasa := f.createRide(t, driver, nairobi, mombasa, at(11), 3, 1500)
	full := f.createRide(t, driver, nairobi, nakuru, at(13), 1, 1500)
	f.createRide(t, driver, nairobi, nakuru, at(14), 3, 5000)
	f.book(t, f.passenger(t), full.ID, 1)

	maxPrice := int64(3000)
	destination := nakuru.Point()
	results, err := f.rides.SearchRides(f.ctx, SearchQuery{
		Origin:      nairobi.Point(),
		Destination: &destination,
		Date:        day,
		SeatsNeeded: 1,
		MaxPrice:    &maxPrice,
		RadiusKm:    10,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	want := []uuid.UUID{fiveKm.ID, near.ID, exact.ID}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, id := range want {
		if results[i].ID != id {
			t.Fatalf("result %d: expected %s, got %s", i, id, results[i].ID)
		}
	}
	if results[0].FreeSeats != 3 {
		t.Fatalf("expected 3 free seats, got %d", results[0].FreeSeats)
	}

	anyDestination, err := f.rides.SearchRides(f.ctx, SearchQuery{Origin: nairobi.Point(), Date: day, SeatsNeeded: 2, RadiusKm: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := false
	for _, r := range anyDestination {
		if r.ID == toMombasa.ID {
			found = true
		}
		if r.ID == full.ID {
			t.Fatal("full ride must not be offered")
		}
	}
	if !found {
		t.Fatal("expected ride to Mombasa without a destination filter")
	}
}

func TestSearchRidesValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]SearchQuery{
		"no seats":     {Origin: nairobi.Point(), Date: f.clock.Now(), SeatsNeeded: 0},
		"no date":      {Origin: nairobi.Point(), SeatsNeeded: 1},
		"bad origin":   {Origin: models.Point{Lat: 100}, Date: f.clock.Now(), SeatsNeeded: 1},
		"radius large": {Origin: nairobi.Point(), Date: f.clock.Now(), SeatsNeeded: 1, RadiusKm: 5000},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.rides.SearchRides(f.ctx, q); !models.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCancelRideCascadesToBookings(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t)
	ride := f.publishRide(t, driver, 4, 2000, 3*time.Hour)
	paidPassenger, unpaidPassenger := f.passenger(t), f.passenger(t)
	paid := f.confirmedBooking(t, paidPassenger, ride.ID, 2)
	unpaid := f.book(t, unpaidPassenger, ride.ID, 1)

	if _, _, err := f.rides.CancelRide(f.ctx, f.driver(t), ride.ID, ""); !models.IsAuthorization(err) {
		t.Fatalf("expected another driver to be refused, got %v", err)
	}

	cancelledRide, cancelled, err := f.rides.CancelRide(f.ctx, driver, ride.ID, "flat tyre")
	if err != nil {
		t.Fatalf("cancel ride: %v", err)
	}
	if cancelledRide.Status != models.RideCancelled || len(cancelled) != 2 {
		t.Fatalf("expected cancelled ride with 2 cancelled bookings, got %s / %d", cancelledRide.Status, len(cancelled))
	}

	if b := f.booking(t, paid.ID); b.Status != models.BookingCancelled || b.RefundAmount != paid.TotalAmount || b.RefundStatus != models.RefundPending {
		t.Fatalf("paid booking not refunded in full: %+v", b)
	}
	if b := f.booking(t, unpaid.ID); b.Status != models.BookingCancelled || b.RefundAmount != 0 {
		t.Fatalf("unpaid booking state: %+v", b)
	}
	if got := f.seatsBooked(t, ride.ID); got != 0 {
		t.Fatalf("expected all seats released, got %d", got)
	}

	events := f.events.ofType(realtime.RideCancelled)
	if len(events) != 1 {
		t.Fatalf("expected one rideCancelled event, got %d", len(events))
	}
	channels := map[string]bool{}
	for _, c := range events[0].Channels {
		channels[c] = true
	}
	for _, p := range []models.Actor{paidPassenger, unpaidPassenger} {
		if !channels[realtime.UserChannel(p.ID)] {
			t.Fatalf("passenger %s was not notified", p.ID)
		}
	}

	_, err = f.bookings.CreateBooking(f.ctx, f.passenger(t), CreateBookingInput{RideID: ride.ID, Seats: 1, PaymentMethod: models.ProviderCard})
	if !models.IsConflict(err) {
		t.Fatalf("expected cancelled ride to refuse bookings, got %v", err)
	}
	if _, _, err := f.rides.CancelRide(f.ctx, driver, ride.ID, ""); !models.IsStateTransition(err) {
		t.Fatalf("expected second cancel to fail, got %v", err)
	}
}

func TestCompleteRideWaitsForPayments(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t)
	ride := f.publishRide(t, driver, 4, 2000, 30*time.Minute)
	confirmed := f.confirmedBooking(t, f.passenger(t), ride.ID, 1)
	waiting := f.book(t, f.passenger(t), ride.ID, 1)

	if _, err := f.rides.CompleteRide(f.ctx, driver, ride.ID); !models.IsValidation(err) {
		t.Fatalf("expected completion before departure to fail, got %v", err)
	}

	f.clock.Advance(time.Hour)
	if _, err := f.rides.CompleteRide(f.ctx, driver, ride.ID); !models.IsConflict(err) {
		t.Fatalf("expected pending payment to block completion, got %v", err)
	}

	if _, err := f.bookings.FailPayment(f.ctx, waiting.ID, "timeout"); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	completed, err := f.rides.CompleteRide(f.ctx, driver, ride.ID)
	if err != nil {
		t.Fatalf("complete ride: %v", err)
	}
	if completed.Status != models.RideCompleted {
		t.Fatalf("expected completed ride, got %s", completed.Status)
	}
	if got := f.booking(t, confirmed.ID).Status; got != models.BookingCompleted {
		t.Fatalf("expected confirmed booking completed, got %s", got)
	}
}

func TestStartRideWindow(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t)
	ride := f.publishRide(t, driver, 4, 2000, 3*time.Hour)

	if _, err := f.rides.StartRide(f.ctx, driver, ride.ID); !models.IsValidation(err) {
		t.Fatalf("expected early start to be refused, got %v", err)
	}
	f.clock.Advance(2*time.Hour + 30*time.Minute)
	started, err := f.rides.StartRide(f.ctx, driver, ride.ID)
	if err != nil {
		t.Fatalf("start ride: %v", err)
	}
	if started.Status != models.RideActive || started.StartedAt == nil {
		t.Fatalf("unexpected ride after start: %+v", started)
	}

	_, err = f.bookings.CreateBooking(f.ctx, f.passenger(t), CreateBookingInput{RideID: ride.ID, Seats: 1, PaymentMethod: models.ProviderCard})
	if !models.IsConflict(err) {
		t.Fatalf("expected running ride to refuse bookings, got %v", err)
	}
}

func TestDriverLocationUpdates(t *testing.T) {
	f := newFixture(t)
	driver := f.driver(t)
	ride := f.publishRide(t, driver, 4, 2000, time.Hour)
	loc := LocationUpdate{Lat: -1.2, Lng: 36.8}

	if err := f.rides.UpdateDriverLocation(f.ctx, f.driver(t), ride.ID, loc); !models.IsAuthorization(err) {
		t.Fatalf("expected another driver to be refused, got %v", err)
	}
	if err := f.rides.UpdateDriverLocation(f.ctx, driver, ride.ID, LocationUpdate{Lat: 200}); !models.IsValidation(err) {
		t.Fatalf("expected bad coordinates to be refused, got %v", err)
	}
	if err := f.rides.UpdateDriverLocation(f.ctx, driver, ride.ID, loc); err != nil {
		t.Fatalf("update location: %v", err)
	}

	events := f.events.ofType(realtime.DriverLocationUpdate)
	if len(events) != 1 || len(events[0].Channels) != 1 || events[0].Channels[0] != realtime.RideChannel(ride.ID) {
		t.Fatalf("expected one location event on the ride channel, got %+v", events)
	}
}
