package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/anjiri1684/seatshare/middleware"
	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ClientMessage is what a connected client may send after authenticating.
type ClientMessage struct {
	Type     string   `json:"type"`
	RideID   string   `json:"ride_id"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Heading  *float64 `json:"heading,omitempty"`
	SpeedKmh *float64 `json:"speed_kmh,omitempty"`
}

// WebsocketUpgrade refuses plain HTTP requests on the websocket route.
func WebsocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *Handler) Websocket() fiber.Handler {
	return websocket.New(h.serveWs)
}

// wsConn serializes writes; the event pump and the read loop both reply.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

func (h *Handler) serveWs(c *websocket.Conn) {
	conn := &wsConn{conn: c}
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	var auth authMessage
	if err := c.ReadJSON(&auth); err != nil || auth.Type != "auth" {
		h.log.WithError(err).Debug("WebSocket auth failed: invalid or missing auth message")
		_ = conn.send(fiber.Map{"error": "Invalid or missing auth message"})
		return
	}
	a, err := middleware.ParseToken(h.jwtSecret, auth.Token)
	if err != nil {
		h.log.WithError(err).Debug("WebSocket auth failed: invalid token")
		_ = conn.send(fiber.Map{"error": "Invalid token"})
		return
	}
	_ = c.SetReadDeadline(time.Time{})

	log := h.log.WithFields(logrus.Fields{"actor": a.String()})
	sub := h.hub.Subscribe(realtime.UserChannel(a.ID))
	_ = conn.send(fiber.Map{"type": "ready", "channel": realtime.UserChannel(a.ID)})
	log.Debug("WebSocket client connected")

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for evt := range sub.Events() {
			if err := conn.send(evt); err != nil {
				log.WithError(err).Debug("WebSocket write failed")
				_ = c.Close()
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		var msg ClientMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("WebSocket read error")
			}
			break
		}
		if err := h.handleClientMessage(ctx, a, sub, msg); err != nil {
			_ = conn.send(fiber.Map{"type": "error", "error": err.Error(), "code": models.ErrorCode(err)})
		}
	}

	h.hub.Unsubscribe(sub)
	<-pumpDone
	log.Debug("WebSocket client disconnected")
}

func (h *Handler) handleClientMessage(ctx context.Context, a models.Actor, sub *realtime.Subscriber, msg ClientMessage) error {
	rideID, err := uuid.Parse(msg.RideID)
	if err != nil {
		return models.ValidationError{Field: "ride_id", Msg: "must be a UUID"}
	}

	switch msg.Type {
	case "subscribe_ride":
		if err := h.canWatchRide(ctx, a, rideID); err != nil {
			return err
		}
		h.hub.Join(sub, realtime.RideChannel(rideID))
		return nil
	case "unsubscribe_ride":
		h.hub.Leave(sub, realtime.RideChannel(rideID))
		return nil
	case "location":
		return h.rides.UpdateDriverLocation(ctx, a, rideID, services.LocationUpdate{
			Lat: msg.Lat, Lng: msg.Lng, Heading: msg.Heading, SpeedKmh: msg.SpeedKmh,
		})
	}
	return models.ValidationError{Field: "type", Msg: "must be subscribe_ride, unsubscribe_ride or location"}
}

// canWatchRide allows the ride's driver, admins, and passengers holding an
// active booking on it.
func (h *Handler) canWatchRide(ctx context.Context, a models.Actor, rideID uuid.UUID) error {
	ride, err := h.rides.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if a.Privileged() || ride.DriverID == a.ID {
		return nil
	}
	if a.IsPassenger() {
		bookings, err := h.bookings.ListPassengerBookings(ctx, a)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			if b.RideID == rideID && b.Status.IsActive() {
				return nil
			}
		}
	}
	return models.AuthorizationError{Reason: "no active booking on this ride"}
}
