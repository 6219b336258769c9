package handlers

import (
	"crypto/subtle"

	"github.com/anjiri1684/seatshare/models"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// HandlePaymentWebhook applies a provider callback. Duplicates and
// callbacks for settled intents are acknowledged with 200 so providers stop
// retrying; only unparseable payloads and unknown references are refused.
func (h *Handler) HandlePaymentWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")
	if h.webhookSecret != "" {
		presented := c.Get("X-Webhook-Secret")
		if presented == "" {
			presented = c.Query("secret")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.webhookSecret)) != 1 {
			h.log.WithField("provider", provider).Warn("webhook with a bad secret refused")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid webhook secret"})
		}
	}

	intent, err := h.payments.HandleWebhook(c.UserContext(), provider, c.Body())
	if err != nil {
		h.log.WithError(err).WithField("provider", provider).Warn("payment webhook not applied")
		return h.respondError(c, err)
	}

	h.log.WithFields(logrus.Fields{
		"provider":   provider,
		"intent_id":  intent.ID,
		"booking_id": intent.BookingID,
		"status":     intent.Status,
	}).Info("payment webhook processed")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Webhook processed",
		"status":  intent.Status,
	})
}

func (h *Handler) GetPaymentIntent(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "intentId")
	if err != nil {
		return h.respondError(c, err)
	}
	intent, err := h.payments.GetIntent(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"payment_intent": intent})
}

// VerifyPayment polls the provider for an intent, typically after the
// passenger returns from a checkout page.
func (h *Handler) VerifyPayment(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "intentId")
	if err != nil {
		return h.respondError(c, err)
	}
	intent, err := h.payments.VerifyForActor(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	msg := "Payment is still pending"
	switch intent.Status {
	case models.IntentSucceeded:
		msg = "Payment confirmed"
	case models.IntentFailed:
		msg = "Payment failed"
	}
	return c.JSON(fiber.Map{"message": msg, "payment_intent": intent})
}
