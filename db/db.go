package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"volunteerops/logger"
	"volunteerops/models"
)

// DSN prefers DATABASE_URL and falls back to the discrete DB_* variables.
func DSN(databaseURL string) string {
	if databaseURL != "" {
		return databaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
}

func ConnectDB(databaseURL string) (*gorm.DB, error) {
	log := logger.GetLogger(context.Background())

	var (
		conn *gorm.DB
		err  error
	)
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		conn, err = gorm.Open(postgres.Open(DSN(databaseURL)), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			break
		}
		log.WithError(err).Warnf("database connection attempt %d/%d failed", i+1, maxRetries)
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	log.Info("database connected")
	return conn, nil
}

// Migrate creates or updates every table. The SQL must stay portable
// between Postgres and SQLite (tests).
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{}, &models.Credential{}, &models.Invite{}, &models.Department{},
		&models.InventoryItem{}, &models.InventoryBooking{}, &models.InventoryKit{},
		&models.InventoryKitItem{}, &models.InventoryNote{}, &models.InventoryDepartmentAccess{},
		&models.Mission{}, &models.Shift{}, &models.ParticipationRequest{},
		&models.CertificateType{}, &models.VolunteerCertificate{},
		&models.Exam{}, &models.ExamQuestion{}, &models.ExamAttempt{}, &models.Task{},
		&models.AuditLog{}, &models.EmailLog{}, &models.Newsletter{},
	); err != nil {
		return err
	}

	// 同一物品最多一条未归还的借用
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_item
	  ON %s (item_id)
	  WHERE status IN ('active', 'overdue');
	`, models.BookingTable, models.BookingTable)).Error; err != nil {
		return err
	}

	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_item_created_desc
	  ON %s (item_id, created_at DESC)
	  WHERE status IN ('active', 'overdue');
	`, models.BookingTable, models.BookingTable)).Error; err != nil {
		return err
	}

	return nil
}
