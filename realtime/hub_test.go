package realtime

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func startHub(t *testing.T, inbox, buffer int) *Hub {
	t.Helper()
	hub := NewHub(quietLogger(), inbox, buffer)
	stop := make(chan struct{})
	go hub.Run(stop)
	t.Cleanup(func() { close(stop) })
	return hub
}

func receive(t *testing.T, sub *Subscriber) Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestPublishReachesOnlyMatchingChannels(t *testing.T) {
	hub := startHub(t, 16, 16)
	user := uuid.New()
	ride := uuid.New()

	userSub := hub.Subscribe(UserChannel(user))
	rideSub := hub.Subscribe(RideChannel(ride))

	hub.Publish(BookingCreated, BookingPayload{RideID: ride}, UserChannel(user))

	evt := receive(t, userSub)
	if evt.Type != BookingCreated || evt.Channel != UserChannel(user) || evt.Seq != 1 {
		t.Fatalf("unexpected event: %+v", evt)
	}
	select {
	case evt := <-rideSub.Events():
		t.Fatalf("ride subscriber should not receive user events: %+v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPerChannelOrderIsPreserved(t *testing.T) {
	hub := startHub(t, 64, 64)
	ride := uuid.New()
	sub := hub.Subscribe(RideChannel(ride))

	for i := 0; i < 20; i++ {
		hub.Publish(DriverLocationUpdate, LocationPayload{RideID: ride, Lat: float64(i)}, RideChannel(ride))
	}
	for i := 1; i <= 20; i++ {
		evt := receive(t, sub)
		if evt.Seq != uint64(i) {
			t.Fatalf("event %d arrived with seq %d", i, evt.Seq)
		}
		if got := evt.Data.(LocationPayload).Lat; got != float64(i-1) {
			t.Fatalf("event %d carried lat %v", i, got)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := startHub(t, 64, 1)
	user := uuid.New()
	slow := hub.Subscribe(UserChannel(user))
	fast := hub.Subscribe(UserChannel(user))

	for i := 0; i < 5; i++ {
		hub.Publish(RideUpdated, RidePayload{}, UserChannel(user))
		receive(t, fast)
	}

	waitFor(t, func() bool { return slow.Dropped() == 4 })
	if len(slow.Events()) != 1 {
		t.Fatalf("slow subscriber buffered %d events, want 1", len(slow.Events()))
	}
}

func TestPublishWithoutRunningHubNeverBlocks(t *testing.T) {
	hub := NewHub(quietLogger(), 2, 1)
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(BookingCancelled, nil, "user:x")
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked")
	}
	if hub.Dropped() != 8 {
		t.Fatalf("dropped = %d, want 8", hub.Dropped())
	}
}

func TestFirehoseAndUnsubscribe(t *testing.T) {
	hub := startHub(t, 16, 16)
	all := hub.Subscribe(Firehose)
	user := uuid.New()

	hub.Publish(PaymentConfirmed, PaymentPayload{}, UserChannel(user), RideChannel(user))
	first, second := receive(t, all), receive(t, all)
	if first.Channel != UserChannel(user) || second.Channel != RideChannel(user) {
		t.Fatalf("firehose received %s then %s", first.Channel, second.Channel)
	}

	hub.Unsubscribe(all)
	select {
	case _, ok := <-all.Events():
		if ok {
			t.Fatalf("expected closed stream after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatalf("stream not closed")
	}
}

func TestJoinAndLeave(t *testing.T) {
	hub := startHub(t, 16, 16)
	user, ride := uuid.New(), uuid.New()
	sub := hub.Subscribe(UserChannel(user))
	hub.Join(sub, RideChannel(ride))

	hub.Publish(RideUpdated, RidePayload{RideID: ride}, RideChannel(ride))
	if evt := receive(t, sub); evt.Channel != RideChannel(ride) {
		t.Fatalf("unexpected channel %s", evt.Channel)
	}

	hub.Leave(sub, RideChannel(ride))
	hub.Publish(RideUpdated, RidePayload{RideID: ride}, RideChannel(ride))
	hub.Publish(BookingConfirmed, BookingPayload{}, UserChannel(user))
	if evt := receive(t, sub); evt.Channel != UserChannel(user) {
		t.Fatalf("left channel still delivered: %s", evt.Channel)
	}
}
