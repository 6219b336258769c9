package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type BookingExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
	ReleaseOrphanedSeats(ctx context.Context) (int, error)
}

// ExpireUnpaidBookings cancels bookings whose payment window has closed and
// hands their seats back. It then retries seat releases that failed when an
// earlier booking ended.
func ExpireUnpaidBookings(bookings BookingExpirer, timeout time.Duration, log *logrus.Logger) func() {
	entry := log.WithField("job", "expire_unpaid_bookings")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		entry.Debug("Running job: ExpireUnpaidBookings")
		expired, err := bookings.ExpireStale(ctx)
		if err != nil {
			entry.WithError(err).Error("error expiring unpaid bookings")
		}
		if expired > 0 {
			entry.WithField("expired", expired).Info("expired unpaid booking(s)")
		}

		released, err := bookings.ReleaseOrphanedSeats(ctx)
		if err != nil {
			entry.WithError(err).Error("error releasing seats of ended bookings")
		}
		if released > 0 {
			entry.WithField("released", released).Warn("released seats left held by ended booking(s)")
		}
	}
}
