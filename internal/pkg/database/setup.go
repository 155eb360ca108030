package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is nil when DB_DRIVER=memory.
var DB *gorm.DB

// GetDB returns the connection opened by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// SetupDatabase opens the configured database and migrates the schema.
// driver is "mysql", "postgres" or "memory"; memory opens nothing.
func SetupDatabase(driver string) (*gorm.DB, error) {
	if driver == "memory" {
		log.Warn("[Database] DB_DRIVER=memory, state is lost on restart")
		DB = nil
		return nil, nil
	}

	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(dialector(driver), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormLogLevel()),
		})
		if err == nil {
			if err = AutoMigrate(DB); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			log.Infof("[Database] Connected to %s", driver)
			return DB, nil
		}

		log.Warnf("[Database] Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Content{},
		&models.Season{},
		&models.Episode{},
		&models.WalletAccount{},
		&models.WalletTransaction{},
		&models.PurchaseRecord{},
		&models.PendingPayment{},
		&models.PaymentWebhookEvent{},
	)
}

func dialector(driver string) gorm.Dialector {
	params := ParamsFromEnv(driver)
	if driver == "postgres" {
		return postgres.Open(params.PostgresDSN())
	}
	return mysql.New(mysql.Config{
		DSN:                       params.MySQLDSN(),
		DefaultStringSize:         256,
		DisableDatetimePrecision:  true,
		DontSupportRenameIndex:    true,
		DontSupportRenameColumn:   true,
		SkipInitializeWithVersion: false,
	})
}

func gormLogLevel() gormlogger.LogLevel {
	if env.IsDev() {
		return gormlogger.Info
	}
	return gormlogger.Warn
}
