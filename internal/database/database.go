package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
	"github.com/drallgood/plex-audiobook-cache/internal/models"
)

// Database wraps the GORM database connection
type Database struct {
	db     *gorm.DB
	config *DatabaseConfig
	logger *logger.Logger
}

// NewDatabase connects using config (falling back to SQLite where possible)
// and migrates the schema
func NewDatabase(config *DatabaseConfig, log *logger.Logger) (*Database, error) {
	log = log.WithComponent("database")

	db, used, err := ConnectWithFallback(config, log)
	if err != nil {
		return nil, err
	}

	database := &Database{
		db:     db,
		config: used,
		logger: log,
	}

	if err := database.migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

func (d *Database) migrate() error {
	d.logger.Debug("Running database migrations")

	if err := d.db.AutoMigrate(&models.Audiobook{}); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}

	d.logger.Debug("Database migrations completed")
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	d.logger.Info("Database connection closed")
	return nil
}

// GetDB returns the underlying GORM database instance
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Config returns the configuration the connection was actually opened with
func (d *Database) Config() *DatabaseConfig {
	return d.config
}

// Health checks the database connection
func (d *Database) Health() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
