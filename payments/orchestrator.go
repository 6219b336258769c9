package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/store"
	"github.com/anjiri1684/seatshare/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxIntentWriteAttempts = 5

// BookingHooks are the booking transitions payment outcomes drive.
type BookingHooks interface {
	ConfirmBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FailPayment(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, error)
	RecordLatePayment(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBooking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	GetBookingInternal(ctx context.Context, id uuid.UUID) (*models.Booking, error)
}

type OrchestratorConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// AttemptTimeout bounds every single provider call.
	AttemptTimeout time.Duration
	ReconcileBatch int
}

// Orchestrator drives payment intents through provider adapters. Every
// intent write is a compare-and-set on its previous status, so duplicate or
// reordered provider notifications apply at most once.
type Orchestrator struct {
	intents   store.PaymentIntentRepository
	bookings  BookingHooks
	events    realtime.Publisher
	providers map[models.PaymentProvider]Provider
	cfg       OrchestratorConfig
	now       func() time.Time
	log       *logrus.Entry
}

func NewOrchestrator(intents store.PaymentIntentRepository, bookings BookingHooks, events realtime.Publisher, cfg OrchestratorConfig, log *logrus.Logger, providers ...Provider) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = 50
	}
	byName := make(map[models.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Orchestrator{
		intents:   intents,
		bookings:  bookings,
		events:    events,
		providers: byName,
		cfg:       cfg,
		now:       time.Now,
		log:       log.WithField("component", "payment_orchestrator"),
	}
}

func (o *Orchestrator) provider(name models.PaymentProvider) (Provider, error) {
	p, ok := o.providers[name]
	if !ok {
		return nil, models.NotFoundError{Resource: "payment provider", ID: string(name)}
	}
	return p, nil
}

func (o *Orchestrator) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.cfg.InitialBackoff
	eb.MaxInterval = o.cfg.MaxBackoff
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.cfg.MaxAttempts-1)), ctx)
}

// Initiate opens an intent for the booking and asks the provider to start
// collection. Transient provider errors are retried with backoff; if they
// persist the intent stays initiated and the booking waits for the expiry
// sweep. A permanent rejection fails the intent and the booking.
func (o *Orchestrator) Initiate(ctx context.Context, booking *models.Booking, payerPhone string) (*models.PaymentIntent, error) {
	provider, err := o.provider(booking.PaymentMethod)
	if err != nil {
		return nil, err
	}

	intent := &models.PaymentIntent{
		BookingID:  booking.ID,
		Provider:   provider.Name(),
		Reference:  utils.GeneratePaymentReference(),
		Status:     models.IntentInitiated,
		Amount:     booking.TotalAmount,
		Currency:   booking.Currency,
		PayerPhone: payerPhone,
	}
	if booking.PaymentIntentID != nil {
		intent.ID = *booking.PaymentIntentID
	}
	if err := o.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	log := o.log.WithFields(logrus.Fields{"intent_id": intent.ID, "booking_id": booking.ID, "provider": intent.Provider})

	req := InitiateRequest{
		Reference:   intent.Reference,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		PayerPhone:  payerPhone,
		Description: "Seat booking " + intent.Reference,
	}

	var result InitiateResult
	attempts := 0
	operation := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		defer cancel()

		r, err := provider.Initiate(attemptCtx, req)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			log.WithError(err).WithField("attempt", attempts).Warn("payment initiation failed, will retry")
			return err
		}
		result = r
		return nil
	}
	retryErr := backoff.Retry(operation, o.newBackOff(ctx))
	intent.Attempts = attempts

	if retryErr != nil {
		if isTransient(retryErr) || ctx.Err() != nil {
			if _, err := o.writeIntent(ctx, intent, models.IntentInitiated); err != nil {
				log.WithError(err).Warn("could not record initiation attempts")
			}
			log.WithError(retryErr).Error("payment provider unavailable, booking left awaiting payment")
			return nil, models.PaymentProviderError{Provider: intent.Provider, Transient: true, Err: retryErr}
		}

		reason := retryErr.Error()
		intent.Status = models.IntentFailed
		intent.FailureReason = &reason
		if _, err := o.writeIntent(ctx, intent, models.IntentInitiated); err != nil {
			log.WithError(err).Warn("could not mark intent failed")
		}
		if _, err := o.bookings.FailPayment(ctx, booking.ID, "payment declined: "+reason); err != nil {
			log.WithError(err).Error("could not cancel booking after declined payment")
		}
		log.WithError(retryErr).Info("payment declined by provider")
		return nil, models.PaymentProviderError{Provider: intent.Provider, Err: retryErr}
	}

	intent.Status = models.IntentPending
	if result.ProviderReference != "" {
		intent.ProviderReference = &result.ProviderReference
	}
	if result.CheckoutURL != "" {
		intent.CheckoutURL = &result.CheckoutURL
	}
	if result.CustomerMessage != "" {
		intent.CustomerMessage = &result.CustomerMessage
	}
	saved, err := o.writeIntent(ctx, intent, models.IntentInitiated)
	if err != nil {
		return nil, err
	}
	log.Info("payment initiated")
	return saved, nil
}

// writeIntent performs a compare-and-set write. When another writer got
// there first the stored intent is returned instead.
func (o *Orchestrator) writeIntent(ctx context.Context, intent *models.PaymentIntent, from models.IntentStatus) (*models.PaymentIntent, error) {
	err := o.intents.Update(ctx, intent, from)
	if errors.Is(err, models.ErrStaleWrite) {
		return o.intents.Get(ctx, intent.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("update payment intent %s: %w", intent.ID, err)
	}
	return intent, nil
}

// HandleWebhook applies an inbound provider notification. An unparseable
// payload is a ValidationError; a notification for an intent that already
// settled is acknowledged without side effects.
func (o *Orchestrator) HandleWebhook(ctx context.Context, providerName string, payload []byte) (*models.PaymentIntent, error) {
	provider, err := o.provider(models.PaymentProvider(providerName))
	if err != nil {
		return nil, err
	}
	n, err := provider.HandleWebhook(payload)
	if err != nil {
		return nil, models.ValidationError{Field: "payload", Msg: err.Error()}
	}
	return o.apply(ctx, provider.Name(), n)
}

func (o *Orchestrator) findIntent(ctx context.Context, provider models.PaymentProvider, n Notification) (*models.PaymentIntent, error) {
	var lastErr error
	for _, ref := range []string{n.ProviderReference, n.Reference} {
		if ref == "" {
			continue
		}
		intent, err := o.intents.FindByProviderReference(ctx, provider, ref)
		if err == nil {
			return intent, nil
		}
		if !models.IsNotFound(err) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = models.ValidationError{Field: "payload", Msg: "notification carries no reference"}
	}
	return nil, lastErr
}

func (o *Orchestrator) apply(ctx context.Context, provider models.PaymentProvider, n Notification) (*models.PaymentIntent, error) {
	intent, err := o.findIntent(ctx, provider, n)
	if err != nil {
		return nil, err
	}
	log := o.log.WithFields(logrus.Fields{"intent_id": intent.ID, "booking_id": intent.BookingID, "notified": n.Status})

	outcome, reason := n.Status, n.Reason
	switch outcome {
	case models.IntentSucceeded:
		if n.Amount != nil && *n.Amount != intent.Amount {
			log.WithFields(logrus.Fields{"expected": intent.Amount, "received": *n.Amount}).Error("payment amount mismatch")
			outcome = models.IntentFailed
			reason = fmt.Sprintf("amount mismatch: expected %d, received %d", intent.Amount, *n.Amount)
		}
	case models.IntentFailed:
		if reason == "" {
			reason = "payment failed"
		}
	}

	if intent.Status.IsTerminal() {
		if intent.Status == outcome {
			return o.resume(ctx, intent, reason)
		}
		log.WithField("status", intent.Status).Debug("notification for settled intent ignored")
		return intent, nil
	}

	switch outcome {
	case models.IntentSucceeded:
		return o.succeed(ctx, intent, n)
	case models.IntentFailed:
		return o.fail(ctx, intent, n, reason)
	default:
		if intent.Status != models.IntentInitiated {
			return intent, nil
		}
		intent.Status = models.IntentPending
		if intent.ProviderReference == nil && n.ProviderReference != "" {
			intent.ProviderReference = &n.ProviderReference
		}
		return o.writeIntent(ctx, intent, models.IntentInitiated)
	}
}

// settle claims a non-terminal intent for outcome with a compare-and-set.
// won is false when another notification settled the intent first; the
// stored intent is returned in that case and the caller must not touch the
// booking.
func (o *Orchestrator) settle(ctx context.Context, intent *models.PaymentIntent, n Notification, outcome models.IntentStatus, reason string) (*models.PaymentIntent, bool, error) {
	for attempt := 0; attempt < maxIntentWriteAttempts; attempt++ {
		if intent.Status.IsTerminal() {
			return intent, false, nil
		}
		from := intent.Status
		intent.Status = outcome
		if outcome == models.IntentFailed {
			intent.FailureReason = &reason
		}
		if n.ProviderTxnID != "" && outcome == models.IntentSucceeded {
			intent.ProviderTxnID = &n.ProviderTxnID
		}
		if intent.ProviderReference == nil && n.ProviderReference != "" {
			intent.ProviderReference = &n.ProviderReference
		}

		err := o.intents.Update(ctx, intent, from)
		if err == nil {
			return intent, true, nil
		}
		if !errors.Is(err, models.ErrStaleWrite) {
			return nil, false, fmt.Errorf("update payment intent %s: %w", intent.ID, err)
		}
		if intent, err = o.intents.Get(ctx, intent.ID); err != nil {
			return nil, false, err
		}
	}
	return nil, false, models.ConflictError{Msg: "payment intent changed concurrently, try again"}
}

// succeed settles the intent first and only then confirms the booking, so
// a failure notification racing with it can never cancel a booking whose
// payment was collected.
func (o *Orchestrator) succeed(ctx context.Context, intent *models.PaymentIntent, n Notification) (*models.PaymentIntent, error) {
	intent, won, err := o.settle(ctx, intent, n, models.IntentSucceeded, "")
	if err != nil {
		return nil, err
	}
	if !won {
		if intent.Status == models.IntentSucceeded {
			return o.resume(ctx, intent, "")
		}
		return intent, nil
	}

	booking, err := o.applySuccess(ctx, intent)
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logrus.Fields{"intent_id": intent.ID, "booking_id": booking.ID}).Info("payment succeeded")
	o.events.Publish(realtime.PaymentConfirmed, realtime.PaymentPayload{
		BookingID: booking.ID,
		IntentID:  intent.ID,
		Provider:  string(intent.Provider),
		Amount:    intent.Amount,
		Currency:  intent.Currency,
	}, realtime.UserChannel(booking.PassengerID), realtime.UserChannel(booking.DriverID))
	return intent, nil
}

// applySuccess confirms the booking of a succeeded intent, or queues a
// refund when the booking ended while the payment was in flight.
func (o *Orchestrator) applySuccess(ctx context.Context, intent *models.PaymentIntent) (*models.Booking, error) {
	booking, err := o.bookings.GetBookingInternal(ctx, intent.BookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.IsTerminal() {
		confirmed, err := o.bookings.ConfirmBooking(ctx, booking.ID)
		if err == nil {
			return confirmed, nil
		}
		if !models.IsStateTransition(err) {
			return nil, fmt.Errorf("confirm booking: %w", err)
		}
	}
	booking, err = o.bookings.RecordLatePayment(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("record late payment: %w", err)
	}
	return booking, nil
}

func (o *Orchestrator) fail(ctx context.Context, intent *models.PaymentIntent, n Notification, reason string) (*models.PaymentIntent, error) {
	intent, won, err := o.settle(ctx, intent, n, models.IntentFailed, reason)
	if err != nil {
		return nil, err
	}
	if !won {
		if intent.Status == models.IntentFailed {
			return o.resume(ctx, intent, reason)
		}
		return intent, nil
	}
	if err := o.applyFailure(ctx, intent, reason); err != nil {
		return nil, err
	}
	o.log.WithFields(logrus.Fields{"intent_id": intent.ID, "reason": reason}).Info("payment failed")
	return intent, nil
}

func (o *Orchestrator) applyFailure(ctx context.Context, intent *models.PaymentIntent, reason string) error {
	if _, err := o.bookings.FailPayment(ctx, intent.BookingID, reason); err != nil {
		if !models.IsStateTransition(err) {
			return fmt.Errorf("fail booking payment: %w", err)
		}
		o.log.WithError(err).WithField("intent_id", intent.ID).Warn("failure notification for a booking past payment")
	}
	return nil
}

// resume finishes the booking side of an intent that already settled. It
// covers a provider retrying after the first delivery settled the intent
// but could not update the booking. Settled bookings are left alone.
func (o *Orchestrator) resume(ctx context.Context, intent *models.PaymentIntent, reason string) (*models.PaymentIntent, error) {
	booking, err := o.bookings.GetBookingInternal(ctx, intent.BookingID)
	if err != nil {
		return nil, err
	}
	switch intent.Status {
	case models.IntentSucceeded:
		collected := booking.PaymentStatus == models.PaymentPaid || booking.PaymentStatus == models.PaymentRefunded
		unsettled := booking.Status == models.BookingPendingPayment || booking.Status == models.BookingPending ||
			(booking.Status.IsTerminal() && !collected)
		if unsettled {
			if _, err := o.applySuccess(ctx, intent); err != nil {
				return nil, err
			}
		}
	case models.IntentFailed:
		if booking.Status == models.BookingPendingPayment {
			if err := o.applyFailure(ctx, intent, reason); err != nil {
				return nil, err
			}
		}
	}
	return intent, nil
}

// Reconcile asks the provider for the intent's current status and applies
// it like a webhook would.
func (o *Orchestrator) Reconcile(ctx context.Context, intentID uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := o.intents.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() || intent.ProviderReference == nil {
		return intent, nil
	}
	provider, err := o.provider(intent.Provider)
	if err != nil {
		return nil, err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	n, err := provider.Verify(verifyCtx, intent.ProviderRef())
	cancel()
	if err != nil {
		return nil, models.PaymentProviderError{Provider: intent.Provider, Transient: isTransient(err), Err: err}
	}
	if n.ProviderReference == "" {
		n.ProviderReference = intent.ProviderRef()
	}
	return o.apply(ctx, intent.Provider, n)
}

// VerifyForActor is Reconcile on behalf of the booking's passenger, used
// after they return from a checkout page.
func (o *Orchestrator) VerifyForActor(ctx context.Context, actor models.Actor, intentID uuid.UUID) (*models.PaymentIntent, error) {
	if _, err := o.GetIntent(ctx, actor, intentID); err != nil {
		return nil, err
	}
	return o.Reconcile(ctx, intentID)
}

// ReconcilePending polls providers for intents that have been pending
// longer than olderThan. It returns how many intents settled.
func (o *Orchestrator) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	unsettled, err := o.intents.ListUnsettled(ctx, o.now().Add(-olderThan), o.cfg.ReconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("list unsettled intents: %w", err)
	}

	settled := 0
	var errs []error
	for _, candidate := range unsettled {
		if ctx.Err() != nil {
			break
		}
		intent, err := o.Reconcile(ctx, candidate.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile intent %s: %w", candidate.ID, err))
			continue
		}
		if intent.Status.IsTerminal() {
			settled++
		}
	}
	return settled, errors.Join(errs...)
}

func (o *Orchestrator) GetIntent(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.PaymentIntent, error) {
	intent, err := o.intents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := o.bookings.GetBooking(ctx, actor, intent.BookingID); err != nil {
		return nil, err
	}
	return intent, nil
}
