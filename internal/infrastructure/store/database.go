package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"driveingest/internal/domain/models"
	"driveingest/internal/pkg/config"
)

// NewDatabase opens the GORM/Postgres connection, grounded on the teacher's
// infrastructure/postgres/database.go DSN assembly.
func NewDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate creates the base schema. Vector column sizing and the ANN index
// are NOT handled here — they're the Store's ensureVectorInfra
// responsibility (spec §4.4, §9), so a commodity deployment without the
// vector extension can still run with captions/tags persisted.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Folder{},
		&models.Image{},
		&models.ScanReceipt{},
	); err != nil {
		return fmt.Errorf("failed to run auto migrations: %w", err)
	}
	return nil
}
