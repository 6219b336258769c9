package handlers

import (
	"strconv"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/services"
	"github.com/gofiber/fiber/v2"
)

type CreateRideRequest struct {
	Origin        placeRequest `json:"origin"`
	Destination   placeRequest `json:"destination"`
	DepartureTime time.Time    `json:"departure_time" validate:"required"`
	Seats         int          `json:"seats" validate:"required,min=1"`
	PricePerSeat  int64        `json:"price_per_seat" validate:"required,gt=0"`
}

type LocationRequest struct {
	Lat      float64  `json:"lat" validate:"latitude"`
	Lng      float64  `json:"lng" validate:"longitude"`
	Heading  *float64 `json:"heading,omitempty" validate:"omitempty,min=0,max=360"`
	SpeedKmh *float64 `json:"speed_kmh,omitempty" validate:"omitempty,min=0"`
}

func (h *Handler) CreateRide(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req CreateRideRequest
	if err := bind(c, &req); err != nil {
		return h.respondError(c, err)
	}

	ride, err := h.rides.CreateRide(c.UserContext(), a, services.CreateRideInput{
		Origin:        *req.Origin.place(),
		Destination:   *req.Destination.place(),
		DepartureTime: req.DepartureTime,
		Seats:         req.Seats,
		PricePerSeat:  req.PricePerSeat,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Ride published successfully",
		"ride":    ride,
	})
}

func queryFloat(c *fiber.Ctx, key string) (*float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, models.ValidationError{Field: key, Msg: "must be a number"}
	}
	return &v, nil
}

func searchQuery(c *fiber.Ctx) (services.SearchQuery, error) {
	var q services.SearchQuery

	originLat, err := queryFloat(c, "origin_lat")
	if err != nil {
		return q, err
	}
	originLng, err := queryFloat(c, "origin_lng")
	if err != nil {
		return q, err
	}
	if originLat == nil || originLng == nil {
		return q, models.ValidationError{Field: "origin", Msg: "origin_lat and origin_lng are required"}
	}
	q.Origin = models.Point{Lat: *originLat, Lng: *originLng}

	destLat, err := queryFloat(c, "dest_lat")
	if err != nil {
		return q, err
	}
	destLng, err := queryFloat(c, "dest_lng")
	if err != nil {
		return q, err
	}
	if (destLat == nil) != (destLng == nil) {
		return q, models.ValidationError{Field: "destination", Msg: "dest_lat and dest_lng go together"}
	}
	if destLat != nil {
		q.Destination = &models.Point{Lat: *destLat, Lng: *destLng}
	}

	date := c.Query("date")
	if date == "" {
		return q, models.ValidationError{Field: "date", Msg: "is required (YYYY-MM-DD)"}
	}
	q.Date, err = time.Parse(time.DateOnly, date)
	if err != nil {
		return q, models.ValidationError{Field: "date", Msg: "must be YYYY-MM-DD"}
	}

	q.SeatsNeeded = c.QueryInt("seats", 1)
	if raw := c.Query("max_price"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, models.ValidationError{Field: "max_price", Msg: "must be an integer amount in minor units"}
		}
		q.MaxPrice = &price
	}
	if radius, err := queryFloat(c, "radius_km"); err != nil {
		return q, err
	} else if radius != nil {
		q.RadiusKm = *radius
	}
	return q, nil
}

func (h *Handler) SearchRides(c *fiber.Ctx) error {
	q, err := searchQuery(c)
	if err != nil {
		return h.respondError(c, err)
	}
	results, err := h.rides.SearchRides(c.UserContext(), q)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"rides": results, "count": len(results)})
}

func (h *Handler) GetRide(c *fiber.Ctx) error {
	id, err := idParam(c, "rideId")
	if err != nil {
		return h.respondError(c, err)
	}
	ride, err := h.rides.GetRide(c.UserContext(), id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"ride": ride, "free_seats": ride.FreeSeats()})
}

func (h *Handler) ListDriverRides(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	rides, err := h.rides.ListDriverRides(c.UserContext(), a)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"rides": rides})
}

func (h *Handler) CancelRide(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "rideId")
	if err != nil {
		return h.respondError(c, err)
	}
	reason, err := optionalReason(c)
	if err != nil {
		return h.respondError(c, err)
	}

	ride, cancelled, err := h.rides.CancelRide(c.UserContext(), a, id, reason)
	if err != nil {
		if ride != nil {
			return h.respondError(c, err, fiber.Map{"ride": ride, "cancelled_bookings": cancelled})
		}
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":            "Ride cancelled",
		"ride":               ride,
		"cancelled_bookings": cancelled,
	})
}

func (h *Handler) StartRide(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "rideId")
	if err != nil {
		return h.respondError(c, err)
	}
	ride, err := h.rides.StartRide(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Ride started", "ride": ride})
}

func (h *Handler) CompleteRide(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "rideId")
	if err != nil {
		return h.respondError(c, err)
	}
	ride, err := h.rides.CompleteRide(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Ride completed", "ride": ride})
}

func (h *Handler) UpdateDriverLocation(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "rideId")
	if err != nil {
		return h.respondError(c, err)
	}
	var req LocationRequest
	if err := bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	err = h.rides.UpdateDriverLocation(c.UserContext(), a, id, services.LocationUpdate{
		Lat: req.Lat, Lng: req.Lng, Heading: req.Heading, SpeedKmh: req.SpeedKmh,
	})
	if err != nil {
		return h.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) ListRideBookings(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "rideId")
	if err != nil {
		return h.respondError(c, err)
	}
	bookings, err := h.bookings.ListRideBookings(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"bookings": bookings})
}
