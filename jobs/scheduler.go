package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Schedule struct {
	ExpirySpec     string
	ReconcileSpec  string
	ReconcileAfter time.Duration
	JobTimeout     time.Duration
}

// NewScheduler registers the booking maintenance jobs. Overlapping runs of
// the same job are skipped rather than queued.
func NewScheduler(bookings BookingExpirer, payments PaymentReconciler, s Schedule, log *logrus.Logger) (*cron.Cron, error) {
	if s.ExpirySpec == "" {
		s.ExpirySpec = "@every 1m"
	}
	if s.ReconcileSpec == "" {
		s.ReconcileSpec = "@every 2m"
	}
	if s.ReconcileAfter <= 0 {
		s.ReconcileAfter = 2 * time.Minute
	}
	if s.JobTimeout <= 0 {
		s.JobTimeout = 50 * time.Second
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{log}), cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc(s.ExpirySpec, ExpireUnpaidBookings(bookings, s.JobTimeout, log)); err != nil {
		return nil, fmt.Errorf("schedule expiry sweep: %w", err)
	}
	if _, err := c.AddFunc(s.ReconcileSpec, ReconcilePayments(payments, s.ReconcileAfter, s.JobTimeout, log)); err != nil {
		return nil, fmt.Errorf("schedule payment reconciliation: %w", err)
	}
	return c, nil
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	log *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(pairs(keysAndValues)).Error(msg)
}

func pairs(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
