package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/anjiri1684/seatshare/configs"
	"github.com/anjiri1684/seatshare/database"
	"github.com/anjiri1684/seatshare/handlers"
	"github.com/anjiri1684/seatshare/jobs"
	"github.com/anjiri1684/seatshare/ledger"
	"github.com/anjiri1684/seatshare/notifications"
	"github.com/anjiri1684/seatshare/payments"
	"github.com/anjiri1684/seatshare/realtime"
	"github.com/anjiri1684/seatshare/routes"
	"github.com/anjiri1684/seatshare/services"
	"github.com/anjiri1684/seatshare/store"
	"github.com/anjiri1684/seatshare/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	log := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server stopped with an error")
	}
	log.Info("Server stopped")
}

func openStore(cfg config.Settings, log *logrus.Logger) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("Using the in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
	}
	db, err := database.ConnectDB(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, log); err != nil {
		return nil, err
	}
	return store.NewGormStore(db), nil
}

func paymentProviders(cfg config.Settings, log *logrus.Logger) []payments.Provider {
	var providers []payments.Provider
	if cfg.KcbAPIKey != "" {
		providers = append(providers, payments.NewMpesaProvider(payments.MpesaConfig{
			BaseURL:         cfg.KcbBaseURL,
			TokenURL:        cfg.KcbTokenURL,
			APIKey:          cfg.KcbAPIKey,
			APISecret:       cfg.KcbAPISecret,
			AccountNumber:   cfg.KcbAccountNumber,
			RouteCode:       cfg.KcbRouteCode,
			TransactionDesc: cfg.KcbTransactionDesc,
			CallbackURL:     cfg.MpesaCallbackURL,
			Timeout:         cfg.PaymentTimeout,
		}, log))
	}
	if cfg.AirtelClientID != "" {
		providers = append(providers, payments.NewAirtelProvider(payments.AirtelConfig{
			BaseURL:      cfg.AirtelBaseURL,
			ClientID:     cfg.AirtelClientID,
			ClientSecret: cfg.AirtelClientSecret,
			Country:      cfg.AirtelCountry,
			Currency:     cfg.Currency,
			Timeout:      cfg.PaymentTimeout,
		}, log))
	}
	if cfg.PayPalClientID != "" {
		providers = append(providers, payments.NewPayPalProvider(payments.PayPalConfig{
			APIBaseURL:   cfg.PayPalAPIBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			ReturnURL:    cfg.PayPalReturnURL,
			CancelURL:    cfg.PayPalCancelURL,
			Timeout:      cfg.PaymentTimeout,
		}, log))
	}
	if len(providers) == 0 {
		log.Warn("No payment provider is configured; bookings cannot be paid")
	}
	return providers
}

func run(cfg config.Settings, log *logrus.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if err := database.SeedAdmin(ctx, st.Users(), config.Config("ADMIN_USER_ID"),
		config.Config("ADMIN_FULL_NAME"), config.Config("ADMIN_EMAIL"), log); err != nil {
		return err
	}

	hub := realtime.NewHub(log, cfg.HubInboxSize, cfg.HubSubscriberBuffer)
	hubStop := make(chan struct{})
	go hub.Run(hubStop)
	defer close(hubStop)

	var geocoder services.Geocoder = services.StraightLineGeocoder{}
	if cfg.OSRMBaseURL != "" {
		geocoder = services.NewOSRMGeocoder(cfg.OSRMBaseURL, 3*time.Second)
	}

	kyc := services.NewStoreKYC(st.Users())
	bookings := services.NewBookingService(st, ledger.New(st.Seats(), log), kyc, hub, services.BookingConfig{
		PaymentTTL:     cfg.PaymentTTL,
		ServiceFee:     cfg.ServiceFee,
		CommissionRate: cfg.CommissionRate,
	}, log)
	rides := services.NewRideService(st, bookings, kyc, geocoder, hub, services.RideConfig{
		Currency:        cfg.Currency,
		DefaultRadiusKm: cfg.DefaultRadiusKm,
		MaxRadiusKm:     cfg.MaxRadiusKm,
		Location:        cfg.Location(),
		StartWindow:     cfg.StartWindow,
	}, log)
	orch := payments.NewOrchestrator(st.Intents(), bookings, hub, payments.OrchestratorConfig{
		MaxAttempts:    cfg.PaymentMaxAttempts,
		AttemptTimeout: cfg.PaymentTimeout,
	}, log, paymentProviders(cfg, log)...)
	bookings.UsePayments(orch)

	scheduler, err := jobs.NewScheduler(bookings, orch, jobs.Schedule{
		ExpirySpec:     cfg.ExpirySchedule,
		ReconcileSpec:  cfg.ReconcileSchedule,
		ReconcileAfter: cfg.ReconcileAfter,
	}, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()
	log.Info("Booking expiry and payment reconciliation jobs scheduled")

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		conn, ch, err := realtime.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		bridge := realtime.NewAMQPBridge(hub, ch, cfg.AMQPExchange, log)
		g.Go(func() error { return bridge.Run(gctx) })
	}

	if brevo := notifications.NewBrevoService(notifications.BrevoConfig{
		APIKey:      cfg.BrevoAPIKey,
		SenderEmail: cfg.EmailSender,
		SenderName:  cfg.EmailSenderName,
	}, log); brevo != nil {
		dispatcher := notifications.NewDispatcher(hub, st.Users(), brevo, log)
		g.Go(func() error { return dispatcher.Run(gctx) })
	}

	app := fiber.New(fiber.Config{
		AppName:       cfg.AppName,
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler:  handlers.ErrorHandler(log),
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Webhook-Secret, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   cfg.Timezone,
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	h := handlers.New(handlers.Deps{
		Rides:         rides,
		Bookings:      bookings,
		Payments:      orch,
		KYC:           kyc,
		Hub:           hub,
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.WebhookSecret,
		Log:           log,
	})
	routes.Setup(app, h, cfg.JWTSecret)

	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("Server is running")
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
