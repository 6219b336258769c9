package handlers

import (
	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	RideID        string        `json:"ride_id" validate:"required,uuid"`
	Seats         int           `json:"seats" validate:"required,min=1"`
	Pickup        *placeRequest `json:"pickup,omitempty"`
	Dropoff       *placeRequest `json:"dropoff,omitempty"`
	PaymentMethod string        `json:"payment_method" validate:"required,oneof=mpesa airtel_money card"`
	PhoneNumber   string        `json:"phone_number,omitempty" validate:"omitempty,max=20"`
}

func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	var req CreateBookingRequest
	if err := bind(c, &req); err != nil {
		return h.respondError(c, err)
	}
	rideID, _ := uuid.Parse(req.RideID)

	result, err := h.bookings.CreateBooking(c.UserContext(), a, services.CreateBookingInput{
		RideID:        rideID,
		Seats:         req.Seats,
		Pickup:        req.Pickup.place(),
		Dropoff:       req.Dropoff.place(),
		PaymentMethod: models.PaymentProvider(req.PaymentMethod),
		PayerPhone:    req.PhoneNumber,
	})
	if err != nil {
		// The booking exists even when payment could not be started; the
		// client needs it to retry verification or show the cancellation.
		if result != nil && result.Booking != nil {
			return h.respondError(c, err, fiber.Map{"booking": result.Booking})
		}
		return h.respondError(c, err)
	}

	resp := fiber.Map{
		"message":        "Seats reserved. Complete payment before the booking expires.",
		"booking":        result.Booking,
		"payment_intent": result.Intent,
	}
	if result.Intent != nil && result.Intent.CustomerMessage != nil {
		resp["message"] = *result.Intent.CustomerMessage
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handler) ListMyBookings(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	bookings, err := h.bookings.ListPassengerBookings(c.UserContext(), a)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"bookings": bookings})
}

func (h *Handler) GetBooking(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "bookingId")
	if err != nil {
		return h.respondError(c, err)
	}
	booking, err := h.bookings.GetBooking(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"booking": booking})
}

func (h *Handler) CancelBooking(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "bookingId")
	if err != nil {
		return h.respondError(c, err)
	}
	reason, err := optionalReason(c)
	if err != nil {
		return h.respondError(c, err)
	}
	booking, err := h.bookings.CancelBooking(c.UserContext(), a, id, reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message":       "Booking cancelled",
		"booking":       booking,
		"refund_amount": booking.RefundAmount,
	})
}

func (h *Handler) CompleteBooking(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "bookingId")
	if err != nil {
		return h.respondError(c, err)
	}
	booking, err := h.bookings.CompleteBooking(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking completed", "booking": booking})
}

func (h *Handler) ListDriverEarnings(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	earnings, err := h.bookings.ListDriverEarnings(c.UserContext(), a)
	if err != nil {
		return h.respondError(c, err)
	}
	var net int64
	for _, e := range earnings {
		net += e.Net
	}
	return c.JSON(fiber.Map{"earnings": earnings, "total_net": net})
}
