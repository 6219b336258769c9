package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const sendTimeout = 15 * time.Second

// Dispatcher turns user-channel hub events into emails. Delivery is best
// effort: failures are logged and booking state is never touched.
type Dispatcher struct {
	hub    *realtime.Hub
	users  store.UserRepository
	mailer Mailer
	log    *logrus.Entry
}

func NewDispatcher(hub *realtime.Hub, users store.UserRepository, mailer Mailer, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, users: users, mailer: mailer, log: log.WithField("component", "notifications")}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	sub := d.hub.Subscribe(realtime.Firehose)
	defer d.hub.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			d.handle(ctx, evt)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, evt realtime.Event) {
	// Each event reaches the firehose once per channel; only the user
	// channels map to a recipient.
	raw, ok := strings.CutPrefix(evt.Channel, "user:")
	if !ok {
		return
	}
	subject, body, ok := render(evt)
	if !ok {
		return
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return
	}

	log := d.log.WithFields(logrus.Fields{"user_id": userID, "type": evt.Type})
	user, err := d.users.Get(ctx, userID)
	if err != nil {
		log.WithError(err).Debug("no profile for notification recipient")
		return
	}
	if user.Email == "" {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := d.mailer.Send(sendCtx, user.FullName, user.Email, subject, body); err != nil {
		log.WithError(err).Warn("failed to send notification email")
		return
	}
	log.Info("notification email sent")
}

func render(evt realtime.Event) (subject, body string, ok bool) {
	switch data := evt.Data.(type) {
	case realtime.BookingPayload:
		switch evt.Type {
		case realtime.BookingConfirmed:
			return "Your seat is confirmed",
				fmt.Sprintf("<h1>Booking confirmed</h1><p>Booking <b>%s</b> for %d seat(s) is confirmed.</p><p>Total paid: %s</p>",
					data.BookingID, data.Seats, formatMoney(data.TotalAmount, data.Currency)), true
		case realtime.BookingCancelled:
			refund := "No refund is due."
			if data.RefundAmount > 0 {
				refund = fmt.Sprintf("A refund of %s will be processed.", formatMoney(data.RefundAmount, data.Currency))
			}
			return "Your booking was cancelled",
				fmt.Sprintf("<h1>Booking cancelled</h1><p>Booking <b>%s</b> was cancelled: %s</p><p>%s</p>",
					data.BookingID, reasonOrDefault(data.Reason), refund), true
		}
	case realtime.RidePayload:
		if evt.Type == realtime.RideCancelled {
			return "Your ride was cancelled",
				fmt.Sprintf("<h1>Ride cancelled</h1><p>The ride departing %s was cancelled: %s</p>",
					data.DepartureTime.Format(time.RFC1123), reasonOrDefault(data.Reason)), true
		}
	case realtime.PaymentPayload:
		return "Payment received",
			fmt.Sprintf("<h1>Payment received</h1><p>We received %s via %s for booking <b>%s</b>.</p>",
				formatMoney(data.Amount, data.Currency), data.Provider, data.BookingID), true
	}
	return "", "", false
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "no reason given"
	}
	return reason
}

func formatMoney(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}
