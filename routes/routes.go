package routes

import (
	"github.com/anjiri1684/seatshare/handlers"
	"github.com/gofiber/fiber/v2"
)

// Setup registers every route. Public routes go first so that the
// protected groups' middleware never runs for them.
func Setup(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	PublicRoutes(app, h)
	PaymentRoutes(app, h, jwtSecret)
	RideRoutes(app, h, jwtSecret)
	BookingRoutes(app, h, jwtSecret)
	AdminRoutes(app, h, jwtSecret)
}
