package ledger

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newRide(t *testing.T, s *store.MemoryStore, capacity int) uuid.UUID {
	t.Helper()
	ride := &models.Ride{
		DriverID:       uuid.New(),
		DepartureTime:  time.Now().Add(24 * time.Hour),
		SeatsAvailable: capacity,
		PricePerSeat:   5000,
		Currency:       "KES",
		Status:         models.RideScheduled,
	}
	if err := s.Rides().Create(context.Background(), ride); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride.ID
}

func TestReserveNeverOverbooksUnderConcurrency(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s.Seats(), quietLogger())
	const capacity = 7
	rideID := newRide(t, s, capacity)

	var wg sync.WaitGroup
	var succeeded, conflicts int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(context.Background(), rideID, 1)
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case models.ErrorCode(err) == models.CodeInsufficientSeats:
				atomic.AddInt64(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != capacity {
		t.Fatalf("succeeded = %d, want %d", succeeded, capacity)
	}
	if conflicts != 50-capacity {
		t.Fatalf("conflicts = %d, want %d", conflicts, 50-capacity)
	}
	ride, _ := s.Rides().Get(context.Background(), rideID)
	if ride.SeatsBooked != capacity {
		t.Fatalf("seats booked = %d, want %d", ride.SeatsBooked, capacity)
	}
}

func TestReserveMixedSizesFitsExactly(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s.Seats(), quietLogger())
	rideID := newRide(t, s, 4)

	requests := []int{3, 2, 2, 1, 1}
	var wg sync.WaitGroup
	var total int64
	for _, n := range requests {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := l.Reserve(context.Background(), rideID, n); err == nil {
				atomic.AddInt64(&total, int64(n))
			}
		}(n)
	}
	wg.Wait()

	ride, _ := s.Rides().Get(context.Background(), rideID)
	if int64(ride.SeatsBooked) != total {
		t.Fatalf("counter %d disagrees with successful reservations %d", ride.SeatsBooked, total)
	}
	if ride.SeatsBooked > 4 {
		t.Fatalf("overbooked: %d > 4", ride.SeatsBooked)
	}
}

func TestReleaseIsIdempotentPerToken(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s.Seats(), quietLogger())
	rideID := newRide(t, s, 2)

	res, err := l.Reserve(context.Background(), rideID, 2)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Release(context.Background(), res.Token); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	ride, _ := s.Rides().Get(context.Background(), rideID)
	if ride.SeatsBooked != 0 {
		t.Fatalf("seats booked = %d, want 0", ride.SeatsBooked)
	}
}

func TestReserveRejectsNonPositiveSeats(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s.Seats(), quietLogger())
	if _, err := l.Reserve(context.Background(), newRide(t, s, 2), 0); !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
