package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type PaymentReconciler interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// ReconcilePayments asks providers about intents whose callback never
// arrived.
func ReconcilePayments(payments PaymentReconciler, olderThan, timeout time.Duration, log *logrus.Logger) func() {
	entry := log.WithField("job", "reconcile_payments")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		entry.Debug("Running job: ReconcilePayments")
		settled, err := payments.ReconcilePending(ctx, olderThan)
		if err != nil {
			entry.WithError(err).Warn("some payment intents could not be reconciled")
		}
		if settled > 0 {
			entry.WithField("settled", settled).Info("settled payment intent(s) from provider status")
		}
	}
}
