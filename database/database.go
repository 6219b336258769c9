package database

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/seatshare/models"
	"github.com/anjiri1684/seatshare/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// activeBookingIndex backs the one-active-booking-per-passenger-per-ride
// rule at the database level.
const activeBookingIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_passenger_ride
	ON bookings (passenger_id, ride_id)
	WHERE status IN ('pending_payment', 'pending', 'confirmed')`

func ConnectDB(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("Database connected successfully")
	return db, nil
}

func Migrate(db *gorm.DB, log *logrus.Logger) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Ride{},
		&models.SeatReservation{},
		&models.Booking{},
		&models.PaymentIntent{},
		&models.DriverEarning{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := db.Exec(activeBookingIndex).Error; err != nil {
		return fmt.Errorf("failed to create active booking index: %w", err)
	}
	log.Info("Database migration successful")
	return nil
}

// SeedAdmin makes sure the operator account named by id exists with the
// admin role.
func SeedAdmin(ctx context.Context, users store.UserRepository, id, fullName, email string, log *logrus.Logger) error {
	if id == "" {
		return nil
	}
	adminID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid admin user id %q: %w", id, err)
	}

	existing, err := users.Get(ctx, adminID)
	switch {
	case err == nil && existing.Role == models.RoleAdmin:
		log.Debug("Admin user already exists.")
		return nil
	case err != nil && !models.IsNotFound(err):
		return fmt.Errorf("failed to check for admin user: %w", err)
	}

	admin := &models.User{
		ID:        adminID,
		FullName:  fullName,
		Email:     email,
		Role:      models.RoleAdmin,
		KYCStatus: models.KYCApproved,
	}
	if err := users.Upsert(ctx, admin); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	log.WithField("user_id", adminID).Info("Admin user seeded successfully")
	return nil
}
