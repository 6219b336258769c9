package handlers

import (
	"errors"

	"github.com/anjiri1684/seatshare/middleware"
	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/payments"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

type Deps struct {
	Rides     *services.RideService
	Bookings  *services.BookingService
	Payments  *payments.Orchestrator
	KYC       *services.StoreKYC
	Hub       *realtime.Hub
	JWTSecret string
	// WebhookSecret, when set, must be presented by providers in the
	// X-Webhook-Secret header or the "secret" query parameter.
	WebhookSecret string
	Log           *logrus.Logger
}

type Handler struct {
	rides         *services.RideService
	bookings      *services.BookingService
	payments      *payments.Orchestrator
	kyc           *services.StoreKYC
	hub           *realtime.Hub
	jwtSecret     string
	webhookSecret string
	log           *logrus.Entry
}

func New(d Deps) *Handler {
	return &Handler{
		rides:         d.Rides,
		bookings:      d.Bookings,
		payments:      d.Payments,
		kyc:           d.KYC,
		hub:           d.Hub,
		jwtSecret:     d.JWTSecret,
		webhookSecret: d.WebhookSecret,
		log:           d.Log.WithField("component", "http"),
	}
}

func statusFor(err error) int {
	var (
		validation models.ValidationError
		authz      models.AuthorizationError
		notFound   models.NotFoundError
		conflict   models.ConflictError
		transition models.StateTransitionError
		provider   models.PaymentProviderError
		fiberErr   *fiber.Error
	)
	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest
	case errors.As(err, &authz):
		return fiber.StatusForbidden
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &transition):
		return fiber.StatusConflict
	case errors.As(err, &provider):
		if provider.Transient {
			return fiber.StatusServiceUnavailable
		}
		return fiber.StatusPaymentRequired
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}

// respondError renders a service error with its stable code. Internal
// errors are logged and never echoed to the client.
func (h *Handler) respondError(c *fiber.Ctx, err error, extra ...fiber.Map) error {
	status := statusFor(err)
	code := models.ErrorCode(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		fields := logrus.Fields{"path": c.Path(), "method": c.Method()}
		if models.IsInvariantViolation(err) {
			fields["alert"] = true
		}
		h.log.WithError(err).WithFields(fields).Error("request failed")
		msg = "internal server error"
	}
	if code == "" {
		code = "internal_error"
		if status != fiber.StatusInternalServerError {
			code = "request_failed"
		}
	}

	body := fiber.Map{"error": msg, "code": code}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler is the app-level fallback for errors that escape a handler.
func ErrorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
		}
		log.WithError(err).WithFields(logrus.Fields{"path": c.Path(), "method": c.Method()}).Error("unhandled request error")
		return c.Status(code).JSON(fiber.Map{
			"status":  "error",
			"code":    code,
			"message": err.Error(),
		})
	}
}

func actor(c *fiber.Ctx) (models.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return models.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "missing caller identity")
	}
	return a, nil
}

func idParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, models.ValidationError{Field: name, Msg: "must be a UUID"}
	}
	return id, nil
}

// bind parses and validates a JSON body.
func bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return models.ValidationError{Field: "body", Msg: "cannot parse JSON"}
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return models.ValidationError{Field: verrs[0].Field(), Msg: "failed " + verrs[0].Tag() + " check"}
		}
		return models.ValidationError{Field: "body", Msg: err.Error()}
	}
	return nil
}

type placeRequest struct {
	Address string  `json:"address" validate:"max=255"`
	Lat     float64 `json:"lat" validate:"latitude"`
	Lng     float64 `json:"lng" validate:"longitude"`
}

func (p *placeRequest) place() *models.Place {
	if p == nil {
		return nil
	}
	return &models.Place{Address: p.Address, Lat: p.Lat, Lng: p.Lng}
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// optionalReason accepts an empty body.
func optionalReason(c *fiber.Ctx) (string, error) {
	if len(c.Body()) == 0 {
		return "", nil
	}
	var req reasonRequest
	if err := bind(c, &req); err != nil {
		return "", err
	}
	return req.Reason, nil
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"dropped_events": h.hub.Dropped(),
	})
}
