package routes

import (
	"github.com/anjiri1684/seatshare/handlers"
	"github.com/anjiri1684/seatshare/middleware"
	"github.com/anjiri1684/seatshare/models"
	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	api := app.Group("/api/v1")

	booking := api.Group("/bookings", middleware.Protected(jwtSecret))
	booking.Post("", middleware.RoleRequired(models.RolePassenger), h.CreateBooking)
	booking.Get("/me", middleware.RoleRequired(models.RolePassenger), h.ListMyBookings)
	booking.Get("/:bookingId", h.GetBooking)
	booking.Post("/:bookingId/cancel", h.CancelBooking)
	booking.Post("/:bookingId/complete", middleware.RoleRequired(models.RoleDriver, models.RoleAdmin), h.CompleteBooking)
}
