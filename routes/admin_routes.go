package routes

import (
	"github.com/anjiri1684/seatshare/handlers"
	"github.com/anjiri1684/seatshare/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	admin := app.Group("/api/v1/admin", middleware.Protected(jwtSecret), middleware.AdminRequired())

	admin.Post("/users/:userId/kyc", h.RecordKYCDecision)
	admin.Post("/bookings/:bookingId/reject", h.RejectBooking)
	admin.Post("/bookings/:bookingId/refund-processed", h.MarkRefundProcessed)
}
