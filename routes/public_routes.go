package routes

import (
	"github.com/anjiri1684/seatshare/handlers"
	"github.com/gofiber/fiber/v2"
)

func PublicRoutes(app *fiber.App, h *handlers.Handler) {
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")
	api.Get("/rides/search", h.SearchRides)
	api.Get("/rides/:rideId", h.GetRide)

	// Authentication happens in the first websocket message.
	api.Get("/ws", handlers.WebsocketUpgrade, h.Websocket())
}
