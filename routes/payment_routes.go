package routes

import (
	"github.com/anjiri1684/seatshare/handlers"
	"github.com/anjiri1684/seatshare/middleware"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook/:provider", h.HandlePaymentWebhook)

	protected := middleware.Protected(jwtSecret)
	api.Get("/payments/:intentId", protected, h.GetPaymentIntent)
	api.Post("/payments/:intentId/verify", protected, h.VerifyPayment)
}
