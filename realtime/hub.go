// Package realtime fans booking, ride and location events out to per-user
// and per-ride channels.
package realtime

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Publisher is what the booking engine depends on.
type Publisher interface {
	Publish(eventType EventType, data any, channels ...string)
}

// Subscriber is one connection's view of the hub. Its buffer is bounded;
// when it is full new events are dropped for that subscriber only.
type Subscriber struct {
	send    chan Event
	dropped atomic.Uint64
	closed  bool // owned by the hub loop
}

func (s *Subscriber) Events() <-chan Event { return s.send }

func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

type registration struct {
	sub      *Subscriber
	channels []string
}

// Hub owns the channel subscription table. Only the Run loop touches the
// table, which is what keeps per-channel ordering.
type Hub struct {
	register   chan registration
	leave      chan registration
	unregister chan *Subscriber
	broadcast  chan Event
	done       chan struct{}

	channels    map[string]map[*Subscriber]struct{}
	memberships map[*Subscriber]map[string]struct{}
	seq         map[string]uint64

	bufferSize int
	dropped    atomic.Uint64
	now        func() time.Time
	log        *logrus.Entry
}

func NewHub(log *logrus.Logger, inboxSize, subscriberBuffer int) *Hub {
	if inboxSize < 1 {
		inboxSize = 1
	}
	if subscriberBuffer < 1 {
		subscriberBuffer = 1
	}
	return &Hub{
		register:    make(chan registration),
		leave:       make(chan registration),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan Event, inboxSize),
		done:        make(chan struct{}),
		channels:    make(map[string]map[*Subscriber]struct{}),
		memberships: make(map[*Subscriber]map[string]struct{}),
		seq:         make(map[string]uint64),
		bufferSize:  subscriberBuffer,
		now:         time.Now,
		log:         log.WithField("component", "realtime_hub"),
	}
}

// Run processes registrations and broadcasts until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	defer close(h.done)
	for {
		select {
		case <-stop:
			for sub := range h.memberships {
				h.drop(sub)
			}
			return
		case reg := <-h.register:
			h.join(reg.sub, reg.channels)
		case reg := <-h.leave:
			h.part(reg.sub, reg.channels)
		case sub := <-h.unregister:
			h.drop(sub)
		case evt := <-h.broadcast:
			h.deliver(evt)
		}
	}
}

// Subscribe registers a new subscriber on the given channels.
func (h *Hub) Subscribe(channels ...string) *Subscriber {
	sub := &Subscriber{send: make(chan Event, h.bufferSize)}
	select {
	case h.register <- registration{sub: sub, channels: channels}:
	case <-h.done:
		close(sub.send)
	}
	return sub
}

// Join adds channels to an existing subscriber.
func (h *Hub) Join(sub *Subscriber, channels ...string) {
	select {
	case h.register <- registration{sub: sub, channels: channels}:
	case <-h.done:
	}
}

// Leave removes channels from a subscriber without closing it.
func (h *Hub) Leave(sub *Subscriber, channels ...string) {
	select {
	case h.leave <- registration{sub: sub, channels: channels}:
	case <-h.done:
	}
}

// Unsubscribe removes the subscriber from every channel and closes its
// event stream.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// Publish never blocks: if the hub inbox is full the event is dropped and
// counted.
func (h *Hub) Publish(eventType EventType, data any, channels ...string) {
	at := h.now()
	for _, channel := range channels {
		evt := Event{Type: eventType, Channel: channel, At: at, Data: data}
		select {
		case h.broadcast <- evt:
		default:
			h.dropped.Add(1)
			h.log.WithFields(logrus.Fields{"channel": channel, "type": eventType}).Warn("hub inbox full, event dropped")
		}
	}
}

// Dropped counts events the hub itself could not accept.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) join(sub *Subscriber, channels []string) {
	if sub.closed {
		return
	}
	member, ok := h.memberships[sub]
	if !ok {
		member = make(map[string]struct{})
		h.memberships[sub] = member
	}
	for _, channel := range channels {
		if h.channels[channel] == nil {
			h.channels[channel] = make(map[*Subscriber]struct{})
		}
		h.channels[channel][sub] = struct{}{}
		member[channel] = struct{}{}
	}
}

func (h *Hub) part(sub *Subscriber, channels []string) {
	member := h.memberships[sub]
	for _, channel := range channels {
		delete(member, channel)
		h.removeFromChannel(sub, channel)
	}
}

func (h *Hub) drop(sub *Subscriber) {
	member, ok := h.memberships[sub]
	if !ok {
		return
	}
	for channel := range member {
		h.removeFromChannel(sub, channel)
	}
	delete(h.memberships, sub)
	sub.closed = true
	close(sub.send)
}

func (h *Hub) removeFromChannel(sub *Subscriber, channel string) {
	subs := h.channels[channel]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
}

func (h *Hub) deliver(evt Event) {
	h.seq[evt.Channel]++
	evt.Seq = h.seq[evt.Channel]

	sent := make(map[*Subscriber]struct{})
	for _, channel := range []string{evt.Channel, Firehose} {
		for sub := range h.channels[channel] {
			if _, done := sent[sub]; done {
				continue
			}
			sent[sub] = struct{}{}
			select {
			case sub.send <- evt:
			default:
				sub.dropped.Add(1)
			}
		}
	}
}
