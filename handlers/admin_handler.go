package handlers

import (
	"github.com/anjiri1684/seatshare/models"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// KYCDecisionRequest mirrors what the verification service reports for a
// user.
type KYCDecisionRequest struct {
	FullName  string `json:"full_name" validate:"max=255"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=20"`
	Role      string `json:"role" validate:"required,oneof=passenger driver"`
	KYCStatus string `json:"kyc_status" validate:"required,oneof=pending approved rejected"`
}

func (h *Handler) RecordKYCDecision(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	userID, err := idParam(c, "userId")
	if err != nil {
		return h.respondError(c, err)
	}
	var req KYCDecisionRequest
	if err := bind(c, &req); err != nil {
		return h.respondError(c, err)
	}

	user := &models.User{
		ID:        userID,
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		Role:      models.Role(req.Role),
		KYCStatus: models.KYCStatus(req.KYCStatus),
	}
	if err := h.kyc.RecordDecision(c.UserContext(), a, user); err != nil {
		return h.respondError(c, err)
	}
	h.log.WithFields(logrus.Fields{"user_id": userID, "kyc_status": user.KYCStatus, "admin": a.ID}).Info("KYC decision recorded")
	return c.JSON(fiber.Map{"message": "KYC decision recorded", "user": user})
}

func (h *Handler) RejectBooking(c *fiber.Ctx) error {
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
	booking, err := h.bookings.RejectBooking(c.UserContext(), a, id, reason)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Booking rejected", "booking": booking})
}

func (h *Handler) MarkRefundProcessed(c *fiber.Ctx) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c, "bookingId")
	if err != nil {
		return h.respondError(c, err)
	}
	booking, err := h.bookings.MarkRefundProcessed(c.UserContext(), a, id)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Refund marked as processed", "booking": booking})
}
