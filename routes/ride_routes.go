package routes

import (
	"github.com/anjiri1684/seatshare/handlers"
	"github.com/anjiri1684/seatshare/middleware"
	"github.com/anjiri1684/seatshare/models"
	"github.com/gofiber/fiber/v2"
)

func RideRoutes(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	api := app.Group("/api/v1")
	protected := middleware.Protected(jwtSecret)
	driver := middleware.RoleRequired(models.RoleDriver)
	driverOrAdmin := middleware.RoleRequired(models.RoleDriver, models.RoleAdmin)

	api.Post("/rides", protected, driver, h.CreateRide)
	api.Get("/driver/rides", protected, driver, h.ListDriverRides)
	api.Get("/driver/earnings", protected, driver, h.ListDriverEarnings)

	api.Post("/rides/:rideId/cancel", protected, driverOrAdmin, h.CancelRide)
	api.Post("/rides/:rideId/start", protected, driverOrAdmin, h.StartRide)
	api.Post("/rides/:rideId/complete", protected, driverOrAdmin, h.CompleteRide)
	api.Post("/rides/:rideId/location", protected, driver, h.UpdateDriverLocation)
	api.Get("/rides/:rideId/bookings", protected, driverOrAdmin, h.ListRideBookings)
}
